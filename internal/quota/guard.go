// Package quota 实现按套餐的每日用量闸门
// 核心约束：同一 (用户, 功能, 自然日) 的检查与计数必须是一次
// 原子操作，最后一个名额绝不能被两个并发请求同时占用
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/run-bigpig/sanjiu/internal/logger"
)

var log = logger.New("Quota")

// 日界以固定报表时区的本地零点为准（A 股时区）
var reportLocation = loadReportLocation()

// loadReportLocation 加载报表时区，系统缺 tzdata 时退化为固定东八区
func loadReportLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Decision 一次用量判定的结果
type Decision struct {
	Allowed bool      `json:"allowed"`
	Used    int       `json:"used"`  // 判定后的计数（放行则含本次）
	Limit   int       `json:"limit"` // -1 表示不限量
	ResetAt time.Time `json:"resetAt"`
}

// usageFile 持久化文件结构
// 一条记录对应一个 (用户, 功能, 日期)；新的一天自然产生新记录，
// 旧记录不回写，计数在一天内只增不减
type usageFile struct {
	Version string         `json:"version"`
	Counts  map[string]int `json:"counts"` // key: userID|feature|2006-01-02
}

// Guard 用量闸门
type Guard struct {
	mu       sync.Mutex
	counts   map[string]int
	filePath string // 为空则仅内存计数
	now      func() time.Time
}

// NewGuard 创建用量闸门并加载历史计数
// dataDir 为空时不持久化（测试用）
func NewGuard(dataDir string) (*Guard, error) {
	g := &Guard{
		counts: make(map[string]int),
		now:    time.Now,
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("创建用量目录失败: %w", err)
		}
		g.filePath = filepath.Join(dataDir, "usage.json")
		if err := g.load(); err != nil {
			// 文件损坏时从零开始计数，不阻塞启动
			log.Warn("load usage file error, starting fresh: %v", err)
		}
	}

	return g, nil
}

// SetNowFunc 注入时钟（测试跨日行为用）
func (g *Guard) SetNowFunc(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// recordKey 组合 (用户, 功能, 日期) 为记录键
func recordKey(userID, feature string, day time.Time) string {
	return userID + "|" + feature + "|" + day.Format("2006-01-02")
}

// CheckAndIncrement 原子地判定并计数
// planLimit == -1 时永远放行但仍计数（供展示）；
// 否则仅当已用次数小于上限时放行并 +1
func (g *Guard) CheckAndIncrement(userID, feature string, planLimit int) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().In(reportLocation)
	key := recordKey(userID, feature, now)
	used := g.counts[key]

	d := Decision{
		Limit:   planLimit,
		ResetAt: nextMidnight(now),
	}

	if planLimit != Unlimited && used >= planLimit {
		d.Allowed = false
		d.Used = used
		return d
	}

	g.counts[key] = used + 1
	d.Allowed = true
	d.Used = used + 1
	g.saveLocked()
	return d
}

// Usage 查询当日已用次数（不计数）
func (g *Guard) Usage(userID, feature string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().In(reportLocation)
	return g.counts[recordKey(userID, feature, now)]
}

// nextMidnight 下一个本地零点，供调用方展示"距重置还有多久"
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, reportLocation)
}

// load 从磁盘加载历史计数
func (g *Guard) load() error {
	data, err := os.ReadFile(g.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var f usageFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Counts != nil {
		g.counts = f.Counts
	}
	return nil
}

// saveLocked 回写磁盘，调用方必须已持锁
// 写失败只告警：用量闸门以内存计数为准，磁盘仅用于进程重启恢复
func (g *Guard) saveLocked() {
	if g.filePath == "" {
		return
	}

	f := usageFile{Version: "1.0", Counts: g.counts}
	data, err := json.Marshal(f)
	if err != nil {
		log.Warn("marshal usage file error: %v", err)
		return
	}
	if err := os.WriteFile(g.filePath, data, 0644); err != nil {
		log.Warn("write usage file error: %v", err)
	}
}
