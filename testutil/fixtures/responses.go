// =============================================================================
// 📦 测试数据工厂 - LLM 响应测试数据
// =============================================================================
// 提供预定义的 LLM 响应与结构化输出 JSON，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/researchflow/llm"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message: llm.Message{
					Role:    llm.RoleAssistant,
					Content: content,
				},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有 choices 的响应
func EmptyResponse() *llm.ChatResponse {
	resp := SimpleResponse("")
	resp.Choices = nil
	return resp
}

// =============================================================================
// 🧩 结构化输出 JSON
// =============================================================================

// QueryPlanJSON 返回查询生成步骤的模型回复
func QueryPlanJSON(rationale string, queries ...string) string {
	if queries == nil {
		queries = []string{}
	}
	return mustJSON(map[string]any{"rationale": rationale, "query": queries})
}

// ReflectionJSON 返回反思步骤的模型回复
func ReflectionJSON(sufficient bool, gap string, followUps ...string) string {
	if followUps == nil {
		followUps = []string{}
	}
	return mustJSON(map[string]any{
		"is_sufficient":     sufficient,
		"knowledge_gap":     gap,
		"follow_up_queries": followUps,
	})
}

// Fenced 将 JSON 包裹在 markdown 代码块中，模拟不遵守指令的模型
func Fenced(doc string) string {
	return "Here is the result:\n```json\n" + doc + "\n```"
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
