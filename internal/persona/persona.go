// Package persona 定义参与辩论的三位固定分析师
// 分析师集合是编译期封闭的：增删分析师必须改这里的枚举和 switch，
// 而不是往配置表里塞字符串
package persona

import "fmt"

// ID 分析师标识，固定为 A/B/C 三位
type ID string

const (
	A ID = "A" // 价值派
	B ID = "B" // 技术派
	C ID = "C" // 风控派
)

// All 返回固定的发言顺序
// 顺序即轮内发言顺序：后发言者可以针对前面的观点进行反驳
func All() [3]ID {
	return [3]ID{A, B, C}
}

// Count 分析师人数
const Count = 3

// Profile 分析师画像
type Profile struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Stance      string   `json:"stance"`      // 分析视角
	ScoringBias string   `json:"scoringBias"` // 打分倾向，会拼进指令里
	AIConfigID  string   `json:"aiConfigId,omitempty"`
	MCPServers  []string `json:"mcpServers,omitempty"`
}

// Get 返回指定分析师的画像
func Get(id ID) Profile {
	switch id {
	case A:
		return Profile{
			ID:     A,
			Name:   "老巴",
			Role:   "价值派分析师",
			Stance: "关注基本面、估值与长期竞争力，对护城河深的公司偏乐观",
			ScoringBias: "打分时以基本面质量为主：盈利稳定、估值合理就敢给高分，" +
				"不因短期波动轻易下调",
		}
	case B:
		return Profile{
			ID:     B,
			Name:   "K线侠",
			Role:   "技术派分析师",
			Stance: "只看量价结构、趋势与资金行为，对消息面保持中性",
			ScoringBias: "打分完全跟随趋势强度：趋势明确给高分，震荡或破位就降分，" +
				"不参考估值",
		}
	case C:
		return Profile{
			ID:     C,
			Name:   "风控姐",
			Role:   "风控派分析师",
			Stance: "专盯下行风险：政策、流动性、商誉、质押、解禁",
			ScoringBias: "打分偏保守：存在未出清的风险点时最多给 3 分，" +
				"必须在 risks 里逐条列出风险",
		}
	default:
		panic(fmt.Sprintf("unknown persona: %s", id))
	}
}

// Valid 判断是否为合法分析师标识
func Valid(id ID) bool {
	switch id {
	case A, B, C:
		return true
	}
	return false
}
