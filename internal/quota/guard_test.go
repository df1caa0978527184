package quota

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeCorruptFile(path string) error {
	return os.WriteFile(path, []byte("{not json"), 0644)
}

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard("")
	if err != nil {
		t.Fatalf("创建闸门失败: %v", err)
	}
	return g
}

func TestCheckAndIncrementBasic(t *testing.T) {
	g := newTestGuard(t)

	for i := 1; i <= 3; i++ {
		d := g.CheckAndIncrement("u1", FeatureDebate, 3)
		if !d.Allowed {
			t.Fatalf("第 %d 次应放行", i)
		}
		if d.Used != i {
			t.Errorf("已用次数错误: got %d, want %d", d.Used, i)
		}
	}

	d := g.CheckAndIncrement("u1", FeatureDebate, 3)
	if d.Allowed {
		t.Error("超限后应拒绝")
	}
	if d.Used != 3 {
		t.Errorf("拒绝时已用次数错误: got %d", d.Used)
	}
	if d.ResetAt.IsZero() {
		t.Error("拒绝时应返回重置时间")
	}

	// 不同功能、不同用户互不影响
	if !g.CheckAndIncrement("u1", FeatureDailyPick, 1).Allowed {
		t.Error("不同功能应独立计数")
	}
	if !g.CheckAndIncrement("u2", FeatureDebate, 3).Allowed {
		t.Error("不同用户应独立计数")
	}
}

func TestConcurrentLastSlot(t *testing.T) {
	g := newTestGuard(t)
	const limit = 5
	const callers = 50

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.CheckAndIncrement("u1", FeatureDebate, limit).Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("并发下放行数量错误: got %d, want %d", allowed, limit)
	}
	if used := g.Usage("u1", FeatureDebate); used != limit {
		t.Errorf("最终计数错误: got %d, want %d", used, limit)
	}
}

func TestUnlimitedStillCounts(t *testing.T) {
	g := newTestGuard(t)

	for i := 1; i <= 10; i++ {
		d := g.CheckAndIncrement("vip1", FeatureDebate, Unlimited)
		if !d.Allowed {
			t.Fatalf("不限量套餐第 %d 次应放行", i)
		}
		if d.Used != i {
			t.Errorf("不限量套餐仍应计数: got %d, want %d", d.Used, i)
		}
		if d.Limit != Unlimited {
			t.Errorf("上限字段错误: got %d", d.Limit)
		}
	}
}

func TestZeroLimitAlwaysDenied(t *testing.T) {
	g := newTestGuard(t)
	if g.CheckAndIncrement("u1", "unknown_feature", 0).Allowed {
		t.Error("上限为 0 时应始终拒绝")
	}
	if g.Usage("u1", "unknown_feature") != 0 {
		t.Error("被拒绝的请求不应计数")
	}
}

func TestDayRollover(t *testing.T) {
	g := newTestGuard(t)

	day1 := time.Date(2025, 6, 1, 23, 50, 0, 0, reportLocation)
	g.SetNowFunc(func() time.Time { return day1 })

	for i := 0; i < 2; i++ {
		g.CheckAndIncrement("u1", FeatureDebate, 2)
	}
	d := g.CheckAndIncrement("u1", FeatureDebate, 2)
	if d.Allowed {
		t.Fatal("当日超限应拒绝")
	}
	wantReset := time.Date(2025, 6, 2, 0, 0, 0, 0, reportLocation)
	if !d.ResetAt.Equal(wantReset) {
		t.Errorf("重置时间错误: got %v, want %v", d.ResetAt, wantReset)
	}

	// 过了本地零点后计数重新开始
	day2 := time.Date(2025, 6, 2, 0, 10, 0, 0, reportLocation)
	g.SetNowFunc(func() time.Time { return day2 })

	d = g.CheckAndIncrement("u1", FeatureDebate, 2)
	if !d.Allowed {
		t.Fatal("跨日后应重新放行")
	}
	if d.Used != 1 {
		t.Errorf("跨日后计数应从 1 开始: got %d", d.Used)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	g1, err := NewGuard(dir)
	if err != nil {
		t.Fatalf("创建闸门失败: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, reportLocation)
	g1.SetNowFunc(func() time.Time { return fixed })
	g1.CheckAndIncrement("u1", FeatureDebate, 3)
	g1.CheckAndIncrement("u1", FeatureDebate, 3)

	// 模拟进程重启
	g2, err := NewGuard(dir)
	if err != nil {
		t.Fatalf("重启后创建闸门失败: %v", err)
	}
	g2.SetNowFunc(func() time.Time { return fixed })

	d := g2.CheckAndIncrement("u1", FeatureDebate, 3)
	if !d.Allowed || d.Used != 3 {
		t.Errorf("重启后应接续历史计数: %+v", d)
	}
	if g2.CheckAndIncrement("u1", FeatureDebate, 3).Allowed {
		t.Error("接续计数后超限应拒绝")
	}
}

func TestCorruptUsageFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	g1, _ := NewGuard(dir)
	g1.CheckAndIncrement("u1", FeatureDebate, 3)

	// 写坏文件后重启不应报错，从零计数
	if err := writeCorruptFile(g1.filePath); err != nil {
		t.Fatalf("写坏文件失败: %v", err)
	}
	g2, err := NewGuard(dir)
	if err != nil {
		t.Fatalf("文件损坏不应阻塞启动: %v", err)
	}
	if g2.Usage("u1", FeatureDebate) != 0 {
		t.Error("损坏文件应从零开始计数")
	}
}

func TestPlanTable(t *testing.T) {
	plans := DefaultPlans()

	tests := []struct {
		plan, feature string
		want          int
	}{
		{"free", FeatureDebate, 3},
		{"free", FeatureDailyPick, 1},
		{"pro", FeatureDebate, 30},
		{"pro", FeatureDailyPick, 5},
		{"vip", FeatureDebate, Unlimited},
		{"vip", FeatureDailyPick, Unlimited},
		{"unknown_plan", FeatureDebate, 0},
		{"free", "unknown_feature", 0},
	}
	for _, tt := range tests {
		if got := plans.LimitFor(tt.plan, tt.feature); got != tt.want {
			t.Errorf("LimitFor(%s, %s) = %d, want %d", tt.plan, tt.feature, got, tt.want)
		}
	}
}
