// Package openai 提供 OpenAI 及兼容接口的 model.LLM 实现
// 走 chat-completions 通道，支持流式输出、thinking 模型与工具调用
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/run-bigpig/sanjiu/internal/logger"
)

var modelLog = logger.New("openai:model")

var _ model.LLM = &OpenAIModel{}

var (
	ErrNoChoicesInResponse = errors.New("no choices in OpenAI response")
)

// OpenAIModel 实现 model.LLM 接口
type OpenAIModel struct {
	Client       *openai.Client
	ModelName    string
	NoSystemRole bool // 不支持 system role，需降级处理
}

// NewOpenAIModel 创建 OpenAI 模型
func NewOpenAIModel(modelName string, cfg openai.ClientConfig, noSystemRole bool) *OpenAIModel {
	return &OpenAIModel{
		Client:       openai.NewClientWithConfig(cfg),
		ModelName:    modelName,
		NoSystemRole: noSystemRole,
	}
}

// Name 返回模型名称
func (o *OpenAIModel) Name() string {
	return o.ModelName
}

// GenerateContent 实现 model.LLM 接口
func (o *OpenAIModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	if stream {
		return o.generateStream(ctx, req)
	}
	return o.generate(ctx, req)
}

// generate 非流式生成
func (o *OpenAIModel) generate(ctx context.Context, req *model.LLMRequest) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		openaiReq, err := toOpenAIChatCompletionRequest(req, o.ModelName, o.NoSystemRole)
		if err != nil {
			yield(nil, err)
			return
		}

		resp, err := o.Client.CreateChatCompletion(ctx, openaiReq)
		if err != nil {
			yield(nil, err)
			return
		}

		llmResp, err := convertChatCompletionResponse(&resp)
		if err != nil {
			yield(nil, err)
			return
		}

		yield(llmResp, nil)
	}
}

// generateStream 流式生成
func (o *OpenAIModel) generateStream(ctx context.Context, req *model.LLMRequest) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		openaiReq, err := toOpenAIChatCompletionRequest(req, o.ModelName, o.NoSystemRole)
		if err != nil {
			yield(nil, err)
			return
		}
		openaiReq.Stream = true

		stream, err := o.Client.CreateChatCompletionStream(ctx, openaiReq)
		if err != nil {
			yield(nil, err)
			return
		}
		defer stream.Close()

		o.processStream(stream, yield)
	}
}

// streamAccumulator 流式过程中的聚合状态
type streamAccumulator struct {
	text      string
	reasoning string
	toolCalls map[int]*toolCallBuilder
	finish    genai.FinishReason
	usage     *genai.GenerateContentResponseUsageMetadata
}

// processStream 逐块消费流式响应：Partial 片段即时上抛，
// 结束后再发送一条完整聚合响应（TurnComplete）
func (o *OpenAIModel) processStream(stream *openai.ChatCompletionStream, yield func(*model.LLMResponse, error) bool) {
	acc := &streamAccumulator{toolCalls: make(map[int]*toolCallBuilder)}

	var streamErr error
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = fmt.Errorf("流式读取错误: %w", err)
				modelLog.Warn("stream interrupted: %v", err)
			}
			break
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if !o.consumeChunk(&chunk, acc, yield) {
			return
		}
	}

	if streamErr != nil {
		yield(nil, streamErr)
		return
	}

	yield(&model.LLMResponse{
		Content:       acc.buildContent(),
		UsageMetadata: acc.usage,
		FinishReason:  acc.finish,
		Partial:       false,
		TurnComplete:  true,
	}, nil)
}

// consumeChunk 处理单个流式块，返回 false 表示消费方已停止
func (o *OpenAIModel) consumeChunk(chunk *openai.ChatCompletionStreamResponse, acc *streamAccumulator, yield func(*model.LLMResponse, error) bool) bool {
	choice := chunk.Choices[0]

	// thinking 模型的 reasoning_content 以 Thought part 上抛
	if choice.Delta.ReasoningContent != "" {
		acc.reasoning += choice.Delta.ReasoningContent
		if !yieldPartial(yield, &genai.Part{Text: choice.Delta.ReasoningContent, Thought: true}) {
			return false
		}
	}

	if choice.Delta.Content != "" {
		acc.text += choice.Delta.Content
		if !yieldPartial(yield, &genai.Part{Text: choice.Delta.Content}) {
			return false
		}
	}

	// 工具调用按 index 聚合，参数分片到达
	for _, toolCall := range choice.Delta.ToolCalls {
		idx := 0
		if toolCall.Index != nil {
			idx = *toolCall.Index
		}
		builder, exists := acc.toolCalls[idx]
		if !exists {
			builder = &toolCallBuilder{}
			acc.toolCalls[idx] = builder
		}
		if toolCall.ID != "" {
			builder.id = toolCall.ID
		}
		if toolCall.Function.Name != "" {
			builder.name = toolCall.Function.Name
		}
		builder.args += toolCall.Function.Arguments
	}

	if choice.FinishReason != "" {
		acc.finish = convertFinishReason(string(choice.FinishReason))
	}
	if chunk.Usage != nil {
		acc.usage = &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(chunk.Usage.PromptTokens),
			CandidatesTokenCount: int32(chunk.Usage.CompletionTokens),
			TotalTokenCount:      int32(chunk.Usage.TotalTokens),
		}
	}
	return true
}

// yieldPartial 上抛一个 Partial 片段
func yieldPartial(yield func(*model.LLMResponse, error) bool, part *genai.Part) bool {
	return yield(&model.LLMResponse{
		Content:      &genai.Content{Role: "model", Parts: []*genai.Part{part}},
		Partial:      true,
		TurnComplete: false,
	}, nil)
}

// buildContent 组装最终聚合内容
// 文本里混入的第三方工具调用标记会被解析成 FunctionCall
func (a *streamAccumulator) buildContent() *genai.Content {
	content := &genai.Content{Role: "model", Parts: []*genai.Part{}}

	if a.reasoning != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: a.reasoning, Thought: true})
	}

	if a.text != "" {
		vendorCalls, cleanedText := parseVendorToolCalls(a.text)
		if cleanedText != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: cleanedText})
		}
		for i, vc := range vendorCalls {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   fmt.Sprintf("vendor_call_%d", i),
					Name: vc.Name,
					Args: vc.Args,
				},
			})
		}
	}

	for _, idx := range sortedKeys(a.toolCalls) {
		builder := a.toolCalls[idx]
		content.Parts = append(content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   builder.id,
				Name: builder.name,
				Args: parseJSONArgs(builder.args),
			},
		})
	}

	return content
}

// toolCallBuilder 用于聚合流式工具调用
type toolCallBuilder struct {
	id   string
	name string
	args string
}

// sortedKeys 返回排序后的 map keys
func sortedKeys(m map[int]*toolCallBuilder) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
