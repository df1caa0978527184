package models

import "time"

// DebateConfig 辩论配置
// 一致/共识阈值来自产品约定，保留为可配置项而非写死
type DebateConfig struct {
	MaxRounds        int           `json:"maxRounds"`        // 最大辩论轮数，默认 4
	ConsensusMaxGap  int           `json:"consensusMaxGap"`  // 最新评分两两差距不超过该值视为达成共识，默认 1
	BullishThreshold int           `json:"bullishThreshold"` // 评分不低于该值视为看多，默认 4
	PersonaTimeout   time.Duration `json:"-"`                // 单个分析师发言的最大时长
	DebateTimeout    time.Duration `json:"-"`                // 单轮辩论整体的最大时长
	IdleTTL          time.Duration `json:"-"`                // 会话空闲多久后可被回收
}

// DefaultDebateConfig 默认辩论配置
func DefaultDebateConfig() DebateConfig {
	return DebateConfig{
		MaxRounds:        4,
		ConsensusMaxGap:  1,
		BullishThreshold: 4,
		PersonaTimeout:   90 * time.Second,
		DebateTimeout:    5 * time.Minute,
		IdleTTL:          30 * time.Minute,
	}
}
