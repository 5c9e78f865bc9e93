package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/researchflow/llm"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 llm.Error
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch status {
	case http.StatusUnauthorized:
		e.Code = llm.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = llm.ErrForbidden
	case http.StatusPaymentRequired:
		// OpenRouter 在余额不足时返回 402
		e.Code = llm.ErrQuotaExceeded
	case http.StatusTooManyRequests:
		e.Code = llm.ErrRateLimited
		e.Retryable = true
	case http.StatusBadRequest:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "limit") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrInvalidRequest
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Code = llm.ErrUpstreamTimeout
		e.Retryable = true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Code = llm.ErrUpstreamError
		e.Retryable = true
	case 529:
		e.Code = llm.ErrModelOverloaded
		e.Retryable = true
	default:
		e.Code = llm.ErrUpstreamError
		e.Retryable = status >= 500
	}
	return e
}

// TransportError wraps a network failure as a retryable upstream error.
func TransportError(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			if errResp.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
			}
			return errResp.Error.Message
		}
		if errResp.Detail != "" {
			return errResp.Detail
		}
	}
	return strings.TrimSpace(string(data))
}

// OpenAI 兼容 API 通用类型

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式.
type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// OpenAICompatJSONSchema is the json_schema member of response_format.
type OpenAICompatJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

// OpenAICompatResponseFormat 表示 response_format 字段.
type OpenAICompatResponseFormat struct {
	Type       string                  `json:"type"`
	JSONSchema *OpenAICompatJSONSchema `json:"json_schema,omitempty"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model          string                      `json:"model"`
	Messages       []OpenAICompatMessage       `json:"messages"`
	MaxTokens      int                         `json:"max_tokens,omitempty"`
	Temperature    *float32                    `json:"temperature,omitempty"`
	TopP           float32                     `json:"top_p,omitempty"`
	Stop           []string                    `json:"stop,omitempty"`
	ResponseFormat *OpenAICompatResponseFormat `json:"response_format,omitempty"`
}

// OpenAICompatChoice 表示 OpenAI 兼容响应中的单个选项.
type OpenAICompatChoice struct {
	Index        int                 `json:"index"`
	FinishReason string              `json:"finish_reason"`
	Message      OpenAICompatMessage `json:"message"`
}

// OpenAICompatUsage 表示 OpenAI 兼容响应中的 token 用量.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse 表示 OpenAI 兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, OpenAICompatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	return out
}

// ConvertResponseFormat maps llm.ResponseFormat onto the wire format.
func ConvertResponseFormat(rf *llm.ResponseFormat) *OpenAICompatResponseFormat {
	if rf == nil || rf.Type == "" || rf.Type == "text" {
		return nil
	}
	out := &OpenAICompatResponseFormat{Type: rf.Type}
	if rf.Type == "json_schema" {
		name := rf.Name
		if name == "" {
			name = "response"
		}
		out.JSONSchema = &OpenAICompatJSONSchema{Name: name, Schema: rf.Schema, Strict: rf.Strict}
	}
	return out
}

// ToLLMChatResponse 将 OpenAI 兼容的响应转换为 llm.ChatResponse.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:    llm.RoleAssistant,
				Content: c.Message.Content,
				Name:    c.Message.Name,
			},
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
func BearerTokenHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}
