package debate

import (
	"context"
	"errors"

	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/persona"
)

// 评分合法区间
const (
	ScoreMin = 1
	ScoreMax = 5
)

var (
	// ErrMalformedResult 生成结果缺字段或评分越界
	ErrMalformedResult = errors.New("生成结果格式不合法")
)

// Request 单次发言的生成请求
// PriorMessages 是本轮之前各分析师的发言，供后发言者反驳
type Request struct {
	Persona       persona.ID
	Stock         models.Stock
	Round         int
	PriorMessages []Message
}

// Result 单次发言的生成结果
// 由生成方解析为结构化数据后返回，评分必须落在 [1,5]
type Result struct {
	Content     string   `json:"content"`
	Score       int      `json:"score"`
	TargetPrice float64  `json:"targetPrice"`
	Risks       []string `json:"risks"`
}

// Validate 校验生成结果
func (r *Result) Validate() error {
	if r == nil || r.Content == "" {
		return ErrMalformedResult
	}
	if r.Score < ScoreMin || r.Score > ScoreMax {
		return ErrMalformedResult
	}
	return nil
}

// Generator 发言生成器，即外部模型调用的边界
// 实现方负责提示词组装、模型调用与结构化解析；对编排器而言
// 这是一次可能很慢、可能失败的外部调用，失败不重试
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// GeneratorFunc 函数式 Generator 适配器
type GeneratorFunc func(ctx context.Context, req Request) (*Result, error)

// Generate 实现 Generator 接口
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
