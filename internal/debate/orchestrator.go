// Package debate 实现单标的多分析师辩论的会话编排
// 每个会话一个 Orchestrator：按固定顺序串行驱动三位分析师发言，
// 后发言者能看到前面的发言并进行反驳，因此轮内不做并发
package debate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/run-bigpig/sanjiu/internal/logger"
	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/persona"
)

var log = logger.New("Debate")

// 错误定义
var (
	ErrRoundInFlight   = errors.New("上一轮辩论尚未结束")
	ErrDebateComplete  = errors.New("辩论已结束")
	ErrFatalGeneration = errors.New("致命生成错误") // 生成方用 %w 包裹后返回，整轮立即中止
)

// roundState 轮次状态机
type roundState int

const (
	stateCreated roundState = iota
	stateRoundActive
	stateRoundComplete
	stateCompleted
)

func (s roundState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateRoundActive:
		return "round_active"
	case stateRoundComplete:
		return "round_complete"
	case stateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Orchestrator 单个会话的辩论编排器
// 内部状态只由自身修改；持锁期间绝不发起生成调用，
// 等待外部模型时其他会话不受任何影响
type Orchestrator struct {
	id    string
	stock models.Stock
	cfg   models.DebateConfig
	gen   Generator

	mu           sync.RWMutex
	state        roundState
	currentRound int // 已完成的轮数，只增不减
	latestScore  map[persona.ID]int
	latestTarget map[persona.ID]float64
	latestRisks  map[persona.ID][]string
	messages     []Message
	createdAt    time.Time
	lastActive   time.Time
}

// NewOrchestrator 创建辩论编排器
func NewOrchestrator(sessionID string, stock models.Stock, cfg models.DebateConfig, gen Generator) *Orchestrator {
	now := time.Now()
	return &Orchestrator{
		id:           sessionID,
		stock:        stock,
		cfg:          cfg,
		gen:          gen,
		state:        stateCreated,
		latestScore:  make(map[persona.ID]int),
		latestTarget: make(map[persona.ID]float64),
		latestRisks:  make(map[persona.ID][]string),
		createdAt:    now,
		lastActive:   now,
	}
}

// ID 会话标识
func (o *Orchestrator) ID() string { return o.id }

// Stock 会话标的
func (o *Orchestrator) Stock() models.Stock { return o.stock }

// CurrentRound 已完成的轮数
func (o *Orchestrator) CurrentRound() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentRound
}

// Completed 辩论是否已到达最大轮数
func (o *Orchestrator) Completed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state == stateCompleted
}

// Messages 返回全部已产生发言的副本（供持久化方落库）
func (o *Orchestrator) Messages() []Message {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// AdvanceRound 推进一轮辩论
// 同一会话同一时刻至多一轮在途：并发调用只有一个成功，
// 其余立即收到 ErrRoundInFlight。返回的事件通道在本轮结束后关闭。
// ctx 只约束事件投递：消费方断开后在途生成调用会继续完成以保持
// 内部状态一致，结果不再投递
func (o *Orchestrator) AdvanceRound(ctx context.Context) (<-chan Event, error) {
	o.mu.Lock()
	switch o.state {
	case stateRoundActive:
		o.mu.Unlock()
		return nil, ErrRoundInFlight
	case stateCompleted:
		o.mu.Unlock()
		return nil, ErrDebateComplete
	}
	o.state = stateRoundActive
	o.lastActive = time.Now()
	round := o.currentRound + 1
	o.mu.Unlock()

	// 缓冲足够容纳一轮全部事件，驱动协程永不因消费慢而卡死
	events := make(chan Event, persona.Count+1)
	go o.runRound(ctx, round, events)
	return events, nil
}

// runRound 轮次驱动协程：串行驱动每位分析师，产出事件后收尾
func (o *Orchestrator) runRound(ctx context.Context, round int, events chan<- Event) {
	defer close(events)

	// 生成调用与消费方断开解耦，只受辩论整体超时约束
	genBase, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DebateTimeout)
	defer cancel()

	delivering := true
	deliver := func(ev Event) {
		if !delivering {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			log.Warn("session %s: consumer gone, round %d continues undelivered", o.id, round)
			delivering = false
		}
	}

	var roundMsgs []Message
	for seq, id := range persona.All() {
		result, err := o.generateOne(genBase, id, round, roundMsgs)
		if err != nil {
			if errors.Is(err, ErrFatalGeneration) {
				log.Error("session %s: fatal error in round %d: %v", o.id, round, err)
				deliver(Event{Type: EventFatalError, FatalReason: err.Error()})
				o.abortRound()
				return
			}
			log.Warn("session %s: persona %s failed in round %d: %v", o.id, id, round, err)
			deliver(Event{Type: EventPersonaError, PersonaError: &PersonaError{
				Persona: id,
				Round:   round,
				Reason:  err.Error(),
			}})
			continue
		}

		msg := Message{
			ID:          uuid.NewString(),
			SessionID:   o.id,
			Persona:     id,
			PersonaName: persona.Get(id).Name,
			Round:       round,
			Content:     result.Content,
			Score:       result.Score,
			TargetPrice: result.TargetPrice,
			Risks:       result.Risks,
			Sequence:    seq,
		}
		roundMsgs = append(roundMsgs, msg)
		o.recordMessage(msg)
		deliver(Event{Type: EventMessage, Message: &msg})
	}

	summary := o.finishRound(round)
	deliver(Event{Type: EventRoundComplete, RoundComplete: &summary})
	log.Info("session %s: round %d complete, consensus=%.2f valid=%v done=%v",
		o.id, round, summary.Consensus.Score, summary.Consensus.Valid, summary.SessionComplete)
}

// generateOne 单个分析师的一次生成（不重试：记录结果即向前走）
func (o *Orchestrator) generateOne(ctx context.Context, id persona.ID, round int, prior []Message) (*Result, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.PersonaTimeout)
	defer cancel()

	result, err := o.gen.Generate(genCtx, Request{
		Persona:       id,
		Stock:         o.stock,
		Round:         round,
		PriorMessages: prior,
	})
	if err != nil {
		return nil, err
	}
	// 评分越界或缺字段按普通失败处理，绝不把脏数据带进状态
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// recordMessage 记录发言并更新该分析师的最新观点
func (o *Orchestrator) recordMessage(msg Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	o.latestScore[msg.Persona] = msg.Score
	o.latestTarget[msg.Persona] = msg.TargetPrice
	o.latestRisks[msg.Persona] = msg.Risks
	o.lastActive = time.Now()
}

// finishRound 收尾一轮：推进轮数并判断是否到达最大轮数
func (o *Orchestrator) finishRound(round int) RoundSummary {
	o.mu.Lock()
	o.currentRound = round
	if round >= o.cfg.MaxRounds {
		o.state = stateCompleted
	} else {
		o.state = stateRoundComplete
	}
	complete := o.state == stateCompleted
	o.lastActive = time.Now()
	o.mu.Unlock()

	return RoundSummary{
		Round:           round,
		Targets:         o.Targets(),
		Consensus:       o.Consensus(),
		SessionComplete: complete,
	}
}

// abortRound 致命错误中止：本轮不计数，会话可重新推进
func (o *Orchestrator) abortRound() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentRound == 0 {
		o.state = stateCreated
	} else {
		o.state = stateRoundComplete
	}
	o.lastActive = time.Now()
}

// Consensus 返回共识快照
// 只统计曾经成功发言的分析师：从未发言的不计入均值，也不当作 0 分
func (o *Orchestrator) Consensus() Consensus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.latestScore) == 0 {
		return Consensus{}
	}

	scores := make(map[persona.ID]int, len(o.latestScore))
	sum, minScore, maxScore := 0, ScoreMax, ScoreMin
	for id, s := range o.latestScore {
		scores[id] = s
		sum += s
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	return Consensus{
		Score:        float64(sum) / float64(len(scores)),
		Valid:        true,
		HasConsensus: maxScore-minScore <= o.cfg.ConsensusMaxGap,
		Scores:       scores,
	}
}

// Targets 返回目标价快照（各分析师最新值及均值）
func (o *Orchestrator) Targets() Targets {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.latestTarget) == 0 {
		return Targets{}
	}

	byPersona := make(map[persona.ID]float64, len(o.latestTarget))
	var sum float64
	for id, t := range o.latestTarget {
		byPersona[id] = t
		sum += t
	}

	return Targets{
		ByPersona: byPersona,
		Mean:      sum / float64(len(byPersona)),
		Valid:     true,
	}
}

// RiskFlags 返回各分析师最新风险提示的并集（保持 A/B/C 顺序，去重）
func (o *Orchestrator) RiskFlags() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	seen := make(map[string]bool)
	var flags []string
	for _, id := range persona.All() {
		for _, r := range o.latestRisks[id] {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			flags = append(flags, r)
		}
	}
	return flags
}
