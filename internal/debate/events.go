package debate

import "github.com/run-bigpig/sanjiu/internal/persona"

// EventType 事件类型
type EventType string

const (
	EventMessage       EventType = "message"        // 单个分析师发言完成
	EventPersonaError  EventType = "persona_error"  // 单个分析师发言失败（非致命）
	EventRoundComplete EventType = "round_complete" // 一轮结束
	EventFatalError    EventType = "fatal_error"    // 致命错误，流终止
)

// Message 分析师发言
// 每个 (会话, 分析师, 轮次) 至多产生一条，生成后不可变
type Message struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Persona     persona.ID `json:"persona"`
	PersonaName string     `json:"personaName"`
	Round       int        `json:"round"`
	Content     string     `json:"content"`
	Score       int        `json:"score"`
	TargetPrice float64    `json:"targetPrice"`
	Risks       []string   `json:"risks,omitempty"`
	Sequence    int        `json:"sequence"` // 轮内序号，0 起
}

// PersonaError 单个分析师的失败记录
type PersonaError struct {
	Persona persona.ID `json:"persona"`
	Round   int        `json:"round"`
	Reason  string     `json:"reason"`
}

// RoundSummary 轮次收尾信息
type RoundSummary struct {
	Round           int       `json:"round"`
	Targets         Targets   `json:"targets"`
	Consensus       Consensus `json:"consensus"`
	SessionComplete bool      `json:"sessionComplete"`
}

// Event 推送给消费方的类型化事件
// 同一轮内严格按分析师顺序产出，消费方无需排序
type Event struct {
	Type          EventType     `json:"type"`
	Message       *Message      `json:"message,omitempty"`
	PersonaError  *PersonaError `json:"personaError,omitempty"`
	RoundComplete *RoundSummary `json:"roundComplete,omitempty"`
	FatalReason   string        `json:"fatalReason,omitempty"`
}

// Consensus 共识快照
// Score 是所有"曾经成功发言"的分析师最新评分的均值；
// 没有任何成功发言时 Valid 为 false
type Consensus struct {
	Score        float64            `json:"score"`
	Valid        bool               `json:"valid"`
	HasConsensus bool               `json:"hasConsensus"`
	Scores       map[persona.ID]int `json:"scores,omitempty"`
}

// Targets 目标价快照
type Targets struct {
	ByPersona map[persona.ID]float64 `json:"byPersona,omitempty"`
	Mean      float64                `json:"mean"`
	Valid     bool                   `json:"valid"`
}
