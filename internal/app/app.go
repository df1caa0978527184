// Package app 是暴露给传输层/持久化层协作方的绑定面
// HTTP 路由、鉴权、SSE 推流都在外部：这里只做配额前置检查、
// 会话编排与结果汇总
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/run-bigpig/sanjiu/internal/debate"
	"github.com/run-bigpig/sanjiu/internal/logger"
	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/quota"
	"github.com/run-bigpig/sanjiu/internal/screener"
	"github.com/run-bigpig/sanjiu/internal/services"
)

var log = logger.New("App")

// 错误定义
var (
	ErrSessionNotFound = errors.New("会话不存在")
	ErrUnknownSymbol   = errors.New("无效的标的代码")
	ErrQuotaExceeded   = errors.New("今日用量已达上限")
)

// App 核心绑定面
type App struct {
	registry *debate.Registry
	guard    *quota.Guard
	plans    quota.PlanTable
	catalog  *services.CatalogService
	cfg      models.DebateConfig
}

// NewApp 创建核心绑定面
func NewApp(gen debate.Generator, cfg models.DebateConfig, guard *quota.Guard, plans quota.PlanTable) *App {
	return &App{
		registry: debate.NewRegistry(cfg, gen),
		guard:    guard,
		plans:    plans,
		catalog:  services.NewCatalogService(),
		cfg:      cfg,
	}
}

// Registry 返回会话注册表（测试与持久化方使用）
func (a *App) Registry() *debate.Registry {
	return a.registry
}

// StartDebate 创建辩论会话并返回会话 ID
// 标的名称从内嵌目录解析，价格由外部采集方传入
func (a *App) StartDebate(symbol string, price float64) (string, error) {
	base, ok := a.catalog.Lookup(symbol)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	stock := models.Stock{
		Symbol: base.Symbol,
		Name:   base.Name,
		Sector: base.Sector,
		Price:  price,
	}

	sessionID := uuid.NewString()
	a.registry.GetOrCreate(sessionID, stock)
	log.Info("debate session %s started for %s (%s)", sessionID, stock.Name, stock.Symbol)
	return sessionID, nil
}

// AdvanceRound 推进一轮辩论
// 配额检查先于一切生成调用：被拒时不会发起任何模型请求，
// 也不会开始事件流
func (a *App) AdvanceRound(ctx context.Context, userID, plan, sessionID string) (<-chan debate.Event, quota.Decision, error) {
	limit := a.plans.LimitFor(plan, quota.FeatureDebate)
	d := a.guard.CheckAndIncrement(userID, quota.FeatureDebate, limit)
	if !d.Allowed {
		return nil, d, fmt.Errorf("%w: 已用 %d/%d", ErrQuotaExceeded, d.Used, d.Limit)
	}

	o, ok := a.registry.Get(sessionID)
	if !ok {
		return nil, d, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	events, err := o.AdvanceRound(ctx)
	if err != nil {
		return nil, d, err
	}
	return events, d, nil
}

// Consensus 查询会话的共识快照
func (a *App) Consensus(sessionID string) (debate.Consensus, error) {
	o, ok := a.registry.Get(sessionID)
	if !ok {
		return debate.Consensus{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return o.Consensus(), nil
}

// Targets 查询会话的目标价快照
func (a *App) Targets(sessionID string) (debate.Targets, error) {
	o, ok := a.registry.Get(sessionID)
	if !ok {
		return debate.Targets{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return o.Targets(), nil
}

// Evaluation 由已结束的会话构建该标的的评估
func (a *App) Evaluation(sessionID string) (screener.SymbolEvaluation, error) {
	o, ok := a.registry.Get(sessionID)
	if !ok {
		return screener.SymbolEvaluation{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	c := o.Consensus()
	stock := o.Stock()
	return screener.NewSymbolEvaluation(
		stock.Symbol, stock.Name, c.Scores, o.RiskFlags(), a.cfg.BullishThreshold), nil
}

// DailyPicks 汇总全部已完成会话的评估并选出 Top5
// 同样受配额约束，被拒时不做任何汇总
func (a *App) DailyPicks(userID, plan string) (screener.Top5Result, quota.Decision, error) {
	limit := a.plans.LimitFor(plan, quota.FeatureDailyPick)
	d := a.guard.CheckAndIncrement(userID, quota.FeatureDailyPick, limit)
	if !d.Allowed {
		return screener.Top5Result{}, d, fmt.Errorf("%w: 已用 %d/%d", ErrQuotaExceeded, d.Used, d.Limit)
	}

	var evals []screener.SymbolEvaluation
	for _, o := range a.registry.All() {
		if !o.Completed() {
			continue
		}
		c := o.Consensus()
		if !c.Valid {
			continue
		}
		stock := o.Stock()
		evals = append(evals, screener.NewSymbolEvaluation(
			stock.Symbol, stock.Name, c.Scores, o.RiskFlags(), a.cfg.BullishThreshold))
	}

	result := screener.SelectTop5(evals)
	log.Info("daily picks for %s: %d candidates, %d unanimous, %d selected",
		userID, result.TotalCandidates, result.UnanimousCount, len(result.Entries))
	return result, d, nil
}

// RunSweeper 周期性回收空闲会话，ctx 取消后退出
func (a *App) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.registry.Sweep()
		}
	}
}
