package debate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/persona"
)

// scriptedGenerator 按分析师返回预设评分的测试生成器
type scriptedGenerator struct {
	mu     sync.Mutex
	scores map[persona.ID]int
	fail   map[persona.ID]error
	seen   []Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req Request) (*Result, error) {
	g.mu.Lock()
	g.seen = append(g.seen, req)
	g.mu.Unlock()
	if err := g.fail[req.Persona]; err != nil {
		return nil, err
	}
	return &Result{
		Content:     fmt.Sprintf("%s 第%d轮发言", req.Persona, req.Round),
		Score:       g.scores[req.Persona],
		TargetPrice: 10.0 + float64(g.scores[req.Persona]),
		Risks:       []string{fmt.Sprintf("%s的风险提示", req.Persona)},
	}, nil
}

func (g *scriptedGenerator) requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, len(g.seen))
	copy(out, g.seen)
	return out
}

func testStock() models.Stock {
	return models.Stock{Symbol: "600519", Name: "贵州茅台", Price: 1500.0, Sector: "白酒"}
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("等待事件超时，已收到 %d 个事件", len(events))
		}
	}
}

func TestAdvanceRoundOrder(t *testing.T) {
	gen := &scriptedGenerator{scores: map[persona.ID]int{
		persona.A: 4, persona.B: 4, persona.C: 5,
	}}
	o := NewOrchestrator("s1", testStock(), models.DefaultDebateConfig(), gen)

	ch, err := o.AdvanceRound(context.Background())
	if err != nil {
		t.Fatalf("推进轮次失败: %v", err)
	}
	events := drain(t, ch)

	if len(events) != persona.Count+1 {
		t.Fatalf("事件数量错误: got %d, want %d", len(events), persona.Count+1)
	}
	order := persona.All()
	for i := 0; i < persona.Count; i++ {
		ev := events[i]
		if ev.Type != EventMessage {
			t.Fatalf("第 %d 个事件类型错误: %s", i, ev.Type)
		}
		if ev.Message.Persona != order[i] {
			t.Errorf("发言顺序错误: 第 %d 位是 %s, 期望 %s", i, ev.Message.Persona, order[i])
		}
		if ev.Message.Sequence != i {
			t.Errorf("轮内序号错误: got %d, want %d", ev.Message.Sequence, i)
		}
		if ev.Message.Round != 1 {
			t.Errorf("轮次错误: got %d, want 1", ev.Message.Round)
		}
	}
	last := events[len(events)-1]
	if last.Type != EventRoundComplete {
		t.Fatalf("末尾事件类型错误: %s", last.Type)
	}
	if last.RoundComplete.SessionComplete {
		t.Error("第一轮不应标记会话结束")
	}

	// 后发言者应看到前面全部发言
	reqs := gen.requests()
	for i, req := range reqs {
		if len(req.PriorMessages) != i {
			t.Errorf("%s 看到 %d 条在先发言, 期望 %d", req.Persona, len(req.PriorMessages), i)
		}
	}
	if got := o.CurrentRound(); got != 1 {
		t.Errorf("已完成轮数错误: got %d, want 1", got)
	}
}

func TestPersonaFailureDoesNotAbortRound(t *testing.T) {
	gen := &scriptedGenerator{
		scores: map[persona.ID]int{persona.A: 4, persona.C: 3},
		fail:   map[persona.ID]error{persona.B: errors.New("模型超时")},
	}
	o := NewOrchestrator("s2", testStock(), models.DefaultDebateConfig(), gen)

	ch, err := o.AdvanceRound(context.Background())
	if err != nil {
		t.Fatalf("推进轮次失败: %v", err)
	}
	events := drain(t, ch)

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []EventType{EventMessage, EventPersonaError, EventMessage, EventRoundComplete}
	if len(types) != len(want) {
		t.Fatalf("事件序列错误: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("事件序列错误: got %v, want %v", types, want)
		}
	}
	if events[1].PersonaError.Persona != persona.B {
		t.Errorf("失败分析师错误: %s", events[1].PersonaError.Persona)
	}

	c := o.Consensus()
	if !c.Valid {
		t.Fatal("有成功发言时共识应有效")
	}
	if len(c.Scores) != 2 {
		t.Errorf("共识只应统计成功发言者: got %d 人", len(c.Scores))
	}
	if c.Score != 3.5 {
		t.Errorf("共识评分错误: got %.2f, want 3.50", c.Score)
	}
	if got := o.CurrentRound(); got != 1 {
		t.Errorf("部分失败的轮次仍应计数: got %d", got)
	}
}

func TestMalformedResultTreatedAsFailure(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, req Request) (*Result, error) {
		if req.Persona == persona.B {
			return &Result{Content: "越界评分", Score: 9}, nil
		}
		return &Result{Content: "正常发言", Score: 3}, nil
	})
	o := NewOrchestrator("s3", testStock(), models.DefaultDebateConfig(), gen)

	ch, _ := o.AdvanceRound(context.Background())
	events := drain(t, ch)

	errCount := 0
	for _, ev := range events {
		if ev.Type == EventPersonaError {
			errCount++
			if ev.PersonaError.Persona != persona.B {
				t.Errorf("失败分析师错误: %s", ev.PersonaError.Persona)
			}
		}
	}
	if errCount != 1 {
		t.Errorf("越界评分应按单人失败处理: got %d 次失败", errCount)
	}
	if len(o.Consensus().Scores) != 2 {
		t.Error("脏数据不应进入共识")
	}
}

func TestConsensusGap(t *testing.T) {
	tests := []struct {
		name         string
		scores       map[persona.ID]int
		wantScore    float64
		hasConsensus bool
	}{
		{"分差过大", map[persona.ID]int{persona.A: 4, persona.B: 5, persona.C: 3}, 4.0, false},
		{"分差达标", map[persona.ID]int{persona.A: 4, persona.B: 4, persona.C: 5}, 13.0 / 3.0, true},
		{"完全一致", map[persona.ID]int{persona.A: 3, persona.B: 3, persona.C: 3}, 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{scores: tt.scores}
			o := NewOrchestrator("s-"+tt.name, testStock(), models.DefaultDebateConfig(), gen)
			ch, _ := o.AdvanceRound(context.Background())
			drain(t, ch)

			c := o.Consensus()
			if !c.Valid {
				t.Fatal("共识应有效")
			}
			if diff := c.Score - tt.wantScore; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("共识评分错误: got %.4f, want %.4f", c.Score, tt.wantScore)
			}
			if c.HasConsensus != tt.hasConsensus {
				t.Errorf("共识判定错误: got %v, want %v", c.HasConsensus, tt.hasConsensus)
			}
		})
	}
}

func TestConcurrentAdvanceRound(t *testing.T) {
	block := make(chan struct{})
	gen := GeneratorFunc(func(_ context.Context, _ Request) (*Result, error) {
		<-block
		return &Result{Content: "慢发言", Score: 3}, nil
	})
	o := NewOrchestrator("s4", testStock(), models.DefaultDebateConfig(), gen)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	chans := make(chan (<-chan Event), callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := o.AdvanceRound(context.Background())
			results <- err
			if err == nil {
				chans <- ch
			}
		}()
	}
	wg.Wait()
	close(results)
	close(chans)

	okCount, busyCount := 0, 0
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrRoundInFlight):
			busyCount++
		default:
			t.Errorf("意外错误: %v", err)
		}
	}
	if okCount != 1 {
		t.Errorf("并发推进只应成功一次: got %d", okCount)
	}
	if busyCount != callers-1 {
		t.Errorf("其余调用都应收到在途错误: got %d", busyCount)
	}

	close(block)
	for ch := range chans {
		drain(t, ch)
	}
	if got := o.CurrentRound(); got != 1 {
		t.Errorf("轮数应只推进一次: got %d", got)
	}
}

func TestMaxRoundsThenComplete(t *testing.T) {
	gen := &scriptedGenerator{scores: map[persona.ID]int{
		persona.A: 4, persona.B: 4, persona.C: 4,
	}}
	cfg := models.DefaultDebateConfig()
	o := NewOrchestrator("s5", testStock(), cfg, gen)

	for round := 1; round <= cfg.MaxRounds; round++ {
		ch, err := o.AdvanceRound(context.Background())
		if err != nil {
			t.Fatalf("第 %d 轮推进失败: %v", round, err)
		}
		events := drain(t, ch)
		last := events[len(events)-1]
		if last.Type != EventRoundComplete {
			t.Fatalf("第 %d 轮缺少收尾事件", round)
		}
		wantDone := round == cfg.MaxRounds
		if last.RoundComplete.SessionComplete != wantDone {
			t.Errorf("第 %d 轮会话结束标记错误: got %v", round, last.RoundComplete.SessionComplete)
		}
	}

	if !o.Completed() {
		t.Fatal("到达最大轮数后会话应标记结束")
	}
	if _, err := o.AdvanceRound(context.Background()); !errors.Is(err, ErrDebateComplete) {
		t.Errorf("结束后推进应被拒绝: got %v", err)
	}
	if got := len(o.Messages()); got != cfg.MaxRounds*persona.Count {
		t.Errorf("发言总数错误: got %d, want %d", got, cfg.MaxRounds*persona.Count)
	}
}

func TestFatalErrorAbortsRound(t *testing.T) {
	fatal := true
	gen := GeneratorFunc(func(_ context.Context, req Request) (*Result, error) {
		if fatal && req.Persona == persona.B {
			return nil, fmt.Errorf("%w: 鉴权失败", ErrFatalGeneration)
		}
		return &Result{Content: "发言", Score: 4}, nil
	})
	o := NewOrchestrator("s6", testStock(), models.DefaultDebateConfig(), gen)

	ch, err := o.AdvanceRound(context.Background())
	if err != nil {
		t.Fatalf("推进轮次失败: %v", err)
	}
	events := drain(t, ch)

	last := events[len(events)-1]
	if last.Type != EventFatalError {
		t.Fatalf("末尾事件应为致命错误: %s", last.Type)
	}
	if got := o.CurrentRound(); got != 0 {
		t.Errorf("中止的轮次不应计数: got %d", got)
	}

	// 中止后会话可重新推进
	fatal = false
	ch, err = o.AdvanceRound(context.Background())
	if err != nil {
		t.Fatalf("中止后重新推进失败: %v", err)
	}
	drain(t, ch)
	if got := o.CurrentRound(); got != 1 {
		t.Errorf("重试成功后轮数错误: got %d", got)
	}
}

func TestConsumerDisconnectKeepsStateConsistent(t *testing.T) {
	gen := &scriptedGenerator{scores: map[persona.ID]int{
		persona.A: 3, persona.B: 3, persona.C: 3,
	}}
	o := NewOrchestrator("s7", testStock(), models.DefaultDebateConfig(), gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 消费方一开始就断开
	if _, err := o.AdvanceRound(ctx); err != nil {
		t.Fatalf("推进轮次失败: %v", err)
	}

	// 不消费事件，轮次仍应在后台完整结束
	deadline := time.After(5 * time.Second)
	for o.CurrentRound() != 1 {
		select {
		case <-deadline:
			t.Fatal("消费方断开后轮次未在后台完成")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(gen.requests()) != persona.Count {
		t.Errorf("三位分析师都应完成生成: got %d", len(gen.requests()))
	}
}

func TestConsensusBeforeAnyMessage(t *testing.T) {
	o := NewOrchestrator("s8", testStock(), models.DefaultDebateConfig(), nil)
	if c := o.Consensus(); c.Valid {
		t.Error("没有发言时共识应无效")
	}
	if tg := o.Targets(); tg.Valid {
		t.Error("没有发言时目标价应无效")
	}
	if flags := o.RiskFlags(); len(flags) != 0 {
		t.Errorf("没有发言时风险提示应为空: %v", flags)
	}
}

func TestRiskFlagsDedup(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, req Request) (*Result, error) {
		return &Result{
			Content: "发言",
			Score:   3,
			Risks:   []string{"估值过高", string(req.Persona) + "独有风险"},
		}, nil
	})
	o := NewOrchestrator("s9", testStock(), models.DefaultDebateConfig(), gen)
	ch, _ := o.AdvanceRound(context.Background())
	drain(t, ch)

	flags := o.RiskFlags()
	if len(flags) != 4 {
		t.Fatalf("风险提示去重后数量错误: %v", flags)
	}
	if flags[0] != "估值过高" {
		t.Errorf("风险提示顺序错误: %v", flags)
	}
}
