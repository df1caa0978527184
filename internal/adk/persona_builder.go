package adk

import (
	"fmt"
	"strings"
	"time"

	"github.com/run-bigpig/sanjiu/internal/adk/mcp"
	"github.com/run-bigpig/sanjiu/internal/debate"
	"github.com/run-bigpig/sanjiu/internal/persona"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
)

// PersonaBuilder 分析师 Agent 构建器
type PersonaBuilder struct {
	llm        model.LLM
	mcpManager *mcp.Manager
}

// NewPersonaBuilder 创建分析师 Agent 构建器
func NewPersonaBuilder(llm model.LLM) *PersonaBuilder {
	return &PersonaBuilder{llm: llm}
}

// NewPersonaBuilderWithMCP 创建可挂载 MCP 工具集的构建器
func NewPersonaBuilderWithMCP(llm model.LLM, mcpMgr *mcp.Manager) *PersonaBuilder {
	return &PersonaBuilder{llm: llm, mcpManager: mcpMgr}
}

// Build 根据辩论请求构建该分析师的 LLM Agent
func (b *PersonaBuilder) Build(req debate.Request) (agent.Agent, error) {
	profile := persona.Get(req.Persona)
	instruction := buildInstruction(profile, req)

	var toolsets []tool.Toolset
	if b.mcpManager != nil && len(profile.MCPServers) > 0 {
		toolsets = b.mcpManager.GetToolsetsByIDs(profile.MCPServers)
	}

	return llmagent.New(llmagent.Config{
		Name:        string(profile.ID),
		Model:       b.llm,
		Description: profile.Role,
		Instruction: instruction,
		Toolsets:    toolsets,
	})
}

// buildInstruction 组装分析师指令
// 同轮中先发言者的观点会拼入上下文，要求后发言者表态反驳或补充
func buildInstruction(profile persona.Profile, req debate.Request) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("你是「%s」，一位%s。\n", profile.Name, profile.Role))
	sb.WriteString(fmt.Sprintf("分析视角：%s。\n", profile.Stance))
	sb.WriteString(fmt.Sprintf("打分原则：%s。\n\n", profile.ScoringBias))

	sb.WriteString(fmt.Sprintf("当前时间: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("标的: %s (%s)\n", req.Stock.Name, req.Stock.Symbol))
	sb.WriteString(fmt.Sprintf("当前价格: %.2f\n", req.Stock.Price))
	if req.Stock.ChangePercent != 0 {
		sb.WriteString(fmt.Sprintf("涨跌幅: %.2f%%\n", req.Stock.ChangePercent))
	}
	sb.WriteString(fmt.Sprintf("辩论轮次: 第 %d 轮\n\n", req.Round))

	if len(req.PriorMessages) > 0 {
		sb.WriteString("【本轮已有发言】\n")
		for _, m := range req.PriorMessages {
			sb.WriteString(fmt.Sprintf("- %s（评分 %d，目标价 %.2f）：%s\n\n",
				m.PersonaName, m.Score, m.TargetPrice, m.Content))
		}
		sb.WriteString("请针对以上观点发表你的看法，可以赞同、补充或反驳，但必须给出自己独立的评分和目标价。\n\n")
	} else {
		sb.WriteString("你是本轮第一位发言者，请独立给出你的判断。\n\n")
	}

	sb.WriteString("## 输出格式（仅输出 JSON，不要输出其他内容）\n")
	sb.WriteString(`{"content":"你的观点，150字以内","score":1到5的整数,"targetPrice":目标价数值,"risks":["风险点1","风险点2"]}`)

	return sb.String()
}
