package models

// AIProvider AI 服务提供方
type AIProvider string

const (
	AIProviderGemini AIProvider = "gemini"
	AIProviderOpenAI AIProvider = "openai" // OpenAI 及兼容接口
)

// AIConfig AI 服务配置
type AIConfig struct {
	ID           string     `json:"id"`
	Provider     AIProvider `json:"provider"`
	ModelName    string     `json:"modelName"`
	APIKey       string     `json:"apiKey"`
	BaseURL      string     `json:"baseUrl,omitempty"`
	NoSystemRole bool       `json:"noSystemRole,omitempty"` // 不支持 system role 的兼容接口
}

// MCPTransportType MCP 传输类型
type MCPTransportType string

const (
	MCPTransportHTTP    MCPTransportType = "http"
	MCPTransportSSE     MCPTransportType = "sse"
	MCPTransportCommand MCPTransportType = "command"
)

// MCPServerConfig MCP 服务器配置
// 分析师可挂载 MCP 工具集做补充研究（如新闻检索）
type MCPServerConfig struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Enabled       bool             `json:"enabled"`
	TransportType MCPTransportType `json:"transportType"`
	Endpoint      string           `json:"endpoint,omitempty"`
	Command       string           `json:"command,omitempty"`
	Args          []string         `json:"args,omitempty"`
	ToolFilter    []string         `json:"toolFilter,omitempty"`
}
