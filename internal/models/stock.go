package models

// Stock 标的基本信息
// 行情由外部采集方解析好后传入，核心只消费已解析的数值
type Stock struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Sector        string  `json:"sector,omitempty"`
}
