package openai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 部分 OpenAI 兼容厂商不走标准 tool_calls 字段，而是把工具调用
// 以 <tool_call>{"name":...,"arguments":{...}}</tool_call> 标记
// 内联在文本里，需要在聚合时解析并清理

var vendorToolCallRe = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// VendorToolCall 从文本标记解析出的工具调用
type VendorToolCall struct {
	Name string
	Args map[string]any
}

// parseVendorToolCalls 解析文本中的厂商工具调用标记
// 返回解析出的调用列表和清理后的文本
func parseVendorToolCalls(text string) ([]VendorToolCall, string) {
	matches := vendorToolCallRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, text
	}

	var calls []VendorToolCall
	for _, m := range matches {
		var payload struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil || payload.Name == "" {
			continue
		}
		args := payload.Arguments
		if args == nil {
			args = make(map[string]any)
		}
		calls = append(calls, VendorToolCall{Name: payload.Name, Args: args})
	}

	cleaned := strings.TrimSpace(vendorToolCallRe.ReplaceAllString(text, ""))
	return calls, cleaned
}

// FilterVendorToolCallMarkers 清除文本中残留的厂商工具调用标记
func FilterVendorToolCallMarkers(text string) string {
	if !strings.Contains(text, "<tool_call>") {
		return text
	}
	return strings.TrimSpace(vendorToolCallRe.ReplaceAllString(text, ""))
}
