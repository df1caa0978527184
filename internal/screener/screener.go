// Package screener 实现跨标的的评估汇总与每日 Top5 精选
// 全部为纯函数：相同输入必然得到相同输出，包括排名顺序和理由文案
package screener

import (
	"fmt"
	"slices"
	"strings"

	"github.com/run-bigpig/sanjiu/internal/persona"
)

// DefaultBullishThreshold 一致看多的评分下限
const DefaultBullishThreshold = 4

// TopN 精选数量上限
const TopN = 5

// SymbolEvaluation 单标的的一次评估结果
// Scores 只包含成功发言过的分析师；AvgScore 恒为其算术平均
type SymbolEvaluation struct {
	Symbol       string             `json:"symbol"`
	Name         string             `json:"name"`
	Scores       map[persona.ID]int `json:"scores"`
	AvgScore     float64            `json:"avgScore"`
	HasUnanimous bool               `json:"hasUnanimous"` // 三位分析师全部给出不低于阈值的评分
	RiskFlags    []string           `json:"riskFlags,omitempty"`
}

// NewSymbolEvaluation 由各分析师评分与风险提示构建评估
// threshold 为一致看多阈值；仅当三位分析师全部成功发言且
// 评分全部不低于阈值时 HasUnanimous 为真
func NewSymbolEvaluation(symbol, name string, scores map[persona.ID]int, risks []string, threshold int) SymbolEvaluation {
	ev := SymbolEvaluation{
		Symbol:    symbol,
		Name:      name,
		Scores:    scores,
		RiskFlags: dedup(risks),
	}

	if len(scores) == 0 {
		return ev
	}

	sum := 0
	unanimous := len(scores) == persona.Count
	for _, s := range scores {
		sum += s
		if s < threshold {
			unanimous = false
		}
	}
	ev.AvgScore = float64(sum) / float64(len(scores))
	ev.HasUnanimous = unanimous
	return ev
}

// dedup 保序去重
func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Entry 精选结果中的一条
type Entry struct {
	Rank         int     `json:"rank"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	AvgScore     float64 `json:"avgScore"`
	HasUnanimous bool    `json:"hasUnanimous"`
	Rationale    string  `json:"rationale"`
}

// Top5Result 每日精选结果
type Top5Result struct {
	Entries         []Entry `json:"entries"`
	TotalCandidates int     `json:"totalCandidates"`
	UnanimousCount  int     `json:"unanimousCount"` // 统计全部候选，不只是入选的
}

// SelectTop5 从候选评估中选出排名前 5 的标的
// 排序键依次为：均分降序 → 一致看多优先 → 风险提示更少优先 →
// 标的代码字典序。最后一级保证相同输入下输出完全可复现
func SelectTop5(evals []SymbolEvaluation) Top5Result {
	result := Top5Result{TotalCandidates: len(evals)}
	for _, ev := range evals {
		if ev.HasUnanimous {
			result.UnanimousCount++
		}
	}
	if len(evals) == 0 {
		return result
	}

	sorted := make([]SymbolEvaluation, len(evals))
	copy(sorted, evals)
	slices.SortFunc(sorted, compareEvaluations)

	n := min(TopN, len(sorted))
	result.Entries = make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		ev := sorted[i]
		result.Entries = append(result.Entries, Entry{
			Rank:         i + 1,
			Symbol:       ev.Symbol,
			Name:         ev.Name,
			AvgScore:     ev.AvgScore,
			HasUnanimous: ev.HasUnanimous,
			Rationale:    buildRationale(ev),
		})
	}
	return result
}

// compareEvaluations 排序比较器，a 应排在 b 前时返回负值
func compareEvaluations(a, b SymbolEvaluation) int {
	switch {
	case a.AvgScore > b.AvgScore:
		return -1
	case a.AvgScore < b.AvgScore:
		return 1
	}
	if a.HasUnanimous != b.HasUnanimous {
		if a.HasUnanimous {
			return -1
		}
		return 1
	}
	if d := len(a.RiskFlags) - len(b.RiskFlags); d != 0 {
		return d
	}
	return strings.Compare(a.Symbol, b.Symbol)
}

// buildRationale 生成入选理由
// 固定模板拼接，不走模型：引用均分、是否一致看多、至多两条风险
func buildRationale(ev SymbolEvaluation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("综合评分 %.1f", ev.AvgScore))
	if ev.HasUnanimous {
		sb.WriteString("，三位分析师一致看多")
	} else {
		sb.WriteString("，分析师意见存在分歧")
	}
	if len(ev.RiskFlags) > 0 {
		shown := ev.RiskFlags
		if len(shown) > 2 {
			shown = shown[:2]
		}
		sb.WriteString("；需关注：")
		sb.WriteString(strings.Join(shown, "、"))
	}
	return sb.String()
}
