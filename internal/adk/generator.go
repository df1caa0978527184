// Package adk 用 Google ADK 实现辩论核心的发言生成边界
// 每次发言是一次独立的 agent 运行：构建指令、调用模型、
// 解析结构化结论。重试与否由这里决定，编排器只调用一次
package adk

import (
	"context"
	"fmt"
	"time"

	"github.com/run-bigpig/sanjiu/internal/adk/mcp"
	"github.com/run-bigpig/sanjiu/internal/adk/openai"
	"github.com/run-bigpig/sanjiu/internal/debate"
	"github.com/run-bigpig/sanjiu/internal/logger"
	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/persona"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

var log = logger.New("ADK")

const appName = "sanjiu"

// AIConfigResolver 按 ID 解析 AI 配置；返回 nil 时使用默认配置
type AIConfigResolver func(aiConfigID string) *models.AIConfig

// Generator 基于 ADK 的发言生成器，实现 debate.Generator
type Generator struct {
	factory    *ModelFactory
	defaultAI  *models.AIConfig
	resolver   AIConfigResolver
	mcpManager *mcp.Manager
}

// NewGenerator 创建发言生成器
func NewGenerator(defaultAI *models.AIConfig) *Generator {
	return &Generator{
		factory:   NewModelFactory(),
		defaultAI: defaultAI,
	}
}

// SetAIConfigResolver 设置 AI 配置解析器（分析师可各自指定模型）
func (g *Generator) SetAIConfigResolver(resolver AIConfigResolver) {
	g.resolver = resolver
}

// SetMCPManager 设置 MCP 管理器
func (g *Generator) SetMCPManager(mgr *mcp.Manager) {
	g.mcpManager = mgr
}

// Generate 实现 debate.Generator
func (g *Generator) Generate(ctx context.Context, req debate.Request) (*debate.Result, error) {
	aiCfg := g.resolveAIConfig(req.Persona)
	if aiCfg == nil {
		return nil, fmt.Errorf("未配置 AI 服务")
	}

	llm, err := g.factory.CreateModel(ctx, aiCfg)
	if err != nil {
		return nil, fmt.Errorf("create model error: %w", err)
	}

	var builder *PersonaBuilder
	if g.mcpManager != nil {
		builder = NewPersonaBuilderWithMCP(llm, g.mcpManager)
	} else {
		builder = NewPersonaBuilder(llm)
	}

	agentInstance, err := builder.Build(req)
	if err != nil {
		return nil, fmt.Errorf("build agent error: %w", err)
	}

	content, err := g.runAgent(ctx, agentInstance, req)
	if err != nil {
		return nil, err
	}

	result, err := ParseVerdict(content)
	if err != nil {
		log.Warn("persona %s round %d: %v", req.Persona, req.Round, err)
		return nil, err
	}

	log.Debug("persona %s round %d done, score=%d target=%.2f",
		req.Persona, req.Round, result.Score, result.TargetPrice)
	return result, nil
}

// resolveAIConfig 解析该分析师使用的 AI 配置
func (g *Generator) resolveAIConfig(id persona.ID) *models.AIConfig {
	profile := persona.Get(id)
	if g.resolver != nil && profile.AIConfigID != "" {
		if resolved := g.resolver(profile.AIConfigID); resolved != nil {
			return resolved
		}
	}
	return g.defaultAI
}

// runAgent 运行一次 agent 并聚合文本输出
func (g *Generator) runAgent(ctx context.Context, agentInstance agent.Agent, req debate.Request) (string, error) {
	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          agentInstance,
		SessionService: sessionService,
	})
	if err != nil {
		return "", err
	}

	sessionID := fmt.Sprintf("gen-%s-r%d-%d", req.Persona, req.Round, time.Now().UnixNano())
	_, err = sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    "debate",
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("create session error: %w", err)
	}

	userMsg := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(fmt.Sprintf("请对 %s (%s) 给出第 %d 轮判断。",
				req.Stock.Name, req.Stock.Symbol, req.Round)),
		},
	}

	var content string
	runCfg := agent.RunConfig{}
	for event, err := range r.Run(ctx, "debate", sessionID, userMsg, runCfg) {
		if err != nil {
			return "", err
		}
		if event == nil || event.LLMResponse.Content == nil {
			continue
		}
		for _, part := range event.LLMResponse.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" && !event.LLMResponse.Partial {
				content += part.Text
			}
		}
	}

	return openai.FilterVendorToolCallMarkers(content), nil
}
