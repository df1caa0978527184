package quota

// 功能标识
const (
	FeatureDebate    = "debate"     // 辩论推进
	FeatureDailyPick = "daily_pick" // 每日 Top5 精选
)

// Unlimited 不限量哨兵值
const Unlimited = -1

// PlanTable 套餐配置表：套餐名 → 功能 → 每日上限（-1 不限量）
type PlanTable map[string]map[string]int

// DefaultPlans 默认套餐配置
func DefaultPlans() PlanTable {
	return PlanTable{
		"free": {
			FeatureDebate:    3,
			FeatureDailyPick: 1,
		},
		"pro": {
			FeatureDebate:    30,
			FeatureDailyPick: 5,
		},
		"vip": {
			FeatureDebate:    Unlimited,
			FeatureDailyPick: Unlimited,
		},
	}
}

// LimitFor 查询套餐下某功能的每日上限
// 未知套餐或未配置的功能一律按 0 处理（直接拒绝），避免静默放行
func (t PlanTable) LimitFor(plan, feature string) int {
	features, ok := t[plan]
	if !ok {
		return 0
	}
	limit, ok := features[feature]
	if !ok {
		return 0
	}
	return limit
}
