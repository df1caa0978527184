package debate

import (
	"sync"
	"time"

	"github.com/run-bigpig/sanjiu/internal/models"
)

// Registry 会话注册表：会话 ID 到编排器的并发安全映射
// 这是进程内唯一一处跨请求可变状态，进程启动时构造一次后
// 以引用传递，不做全局变量
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Orchestrator
	cfg      models.DebateConfig
	gen      Generator
}

// NewRegistry 创建会话注册表
func NewRegistry(cfg models.DebateConfig, gen Generator) *Registry {
	return &Registry{
		sessions: make(map[string]*Orchestrator),
		cfg:      cfg,
		gen:      gen,
	}
}

// GetOrCreate 获取或创建会话编排器
// insert-if-absent 是原子的：同一会话 ID 的并发首次访问
// 只会创建一个编排器
func (r *Registry) GetOrCreate(sessionID string, stock models.Stock) *Orchestrator {
	r.mu.RLock()
	if o, ok := r.sessions[sessionID]; ok {
		r.mu.RUnlock()
		return o
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.sessions[sessionID]; ok {
		return o
	}
	o := NewOrchestrator(sessionID, stock, r.cfg, r.gen)
	r.sessions[sessionID] = o
	log.Debug("session %s created for %s (%s)", sessionID, stock.Name, stock.Symbol)
	return o
}

// Get 获取已存在的会话编排器
func (r *Registry) Get(sessionID string) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.sessions[sessionID]
	return o, ok
}

// All 返回当前全部会话编排器
func (r *Registry) All() []*Orchestrator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Orchestrator, 0, len(r.sessions))
	for _, o := range r.sessions {
		out = append(out, o)
	}
	return out
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict 移除指定会话
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Sweep 回收空闲超过 IdleTTL 的会话，返回回收数量
// 在途轮次不回收；核心不保证会话持久，落库由外部持久化方负责
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, o := range r.sessions {
		o.mu.RLock()
		idle := time.Since(o.lastActive)
		active := o.state == stateRoundActive
		o.mu.RUnlock()
		if !active && idle > r.cfg.IdleTTL {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		log.Info("swept %d idle sessions, %d remain", n, len(r.sessions))
	}
	return n
}
