package adk

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/run-bigpig/sanjiu/internal/debate"
)

// verdict 模型输出的结构化结论
// score 按 number 收，兼容给出 4.5 这类小数的模型，四舍五入后再校验
type verdict struct {
	Content     string   `json:"content"`
	Score       float64  `json:"score"`
	TargetPrice float64  `json:"targetPrice"`
	Risks       []string `json:"risks"`
}

// ParseVerdict 从模型输出中解析结构化结论
// 模型经常在 JSON 外包一层废话或代码块标记，按多种方式尝试提取
func ParseVerdict(content string) (*debate.Result, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: 无法从响应中提取 JSON: %s",
			debate.ErrMalformedResult, truncateString(content, 200))
	}

	var v verdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return nil, fmt.Errorf("%w: JSON 解析失败: %v, 原文: %s",
			debate.ErrMalformedResult, err, truncateString(jsonStr, 200))
	}

	if strings.TrimSpace(v.Content) == "" {
		return nil, fmt.Errorf("%w: 缺少 content 字段", debate.ErrMalformedResult)
	}

	score := int(math.Round(v.Score))
	if score < debate.ScoreMin || score > debate.ScoreMax {
		return nil, fmt.Errorf("%w: 评分 %v 越界", debate.ErrMalformedResult, v.Score)
	}

	return &debate.Result{
		Content:     strings.TrimSpace(v.Content),
		Score:       score,
		TargetPrice: v.TargetPrice,
		Risks:       v.Risks,
	}, nil
}

// extractJSON 从文本中提取 JSON 对象
func extractJSON(content string) string {
	// 方法1: 整体就是一个 JSON 对象
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		return content
	}

	// 方法2: ```json 代码块
	if idx := strings.Index(content, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}

	// 方法3: 普通 ``` 代码块
	if idx := strings.Index(content, "```"); idx != -1 {
		start := idx + 3
		// 跳过可能的语言标识
		if newline := strings.Index(content[start:], "\n"); newline != -1 {
			start += newline + 1
		}
		if end := strings.Index(content[start:], "```"); end != -1 {
			extracted := strings.TrimSpace(content[start : start+end])
			if strings.HasPrefix(extracted, "{") {
				return extracted
			}
		}
	}

	// 方法4: 括号配对找第一个完整 JSON 对象
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(content); i++ {
		c := content[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == '{' {
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	// 方法5: 回退到首尾匹配
	end := strings.LastIndex(content, "}")
	if end > start {
		return content[start : end+1]
	}

	return ""
}

// truncateString 截断字符串用于错误信息
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
