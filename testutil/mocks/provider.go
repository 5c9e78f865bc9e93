// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按请求脚本化响应、延迟与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/researchflow/llm"
)

// --- MockProvider 结构 ---

// Responder 根据请求决定一次调用的回复内容
type Responder func(ctx context.Context, req *llm.ChatRequest) (string, error)

// MockProvider 是 LLM Provider 的模拟实现，可并发调用
type MockProvider struct {
	mu sync.RWMutex

	name string

	// 响应配置
	response  string
	responder Responder
	err       error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponder 设置按请求生成响应内容的函数
func (m *MockProvider) WithResponder(fn Responder) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: 10 * time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	failAfter, presetErr := m.failAfter, m.err
	fn, responder, content := m.completionFunc, m.responder, m.response
	delay, prompt, completion, name := m.delay, m.promptTokens, m.completionTokens, m.name
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	// 检查是否应该失败
	if failAfter > 0 && n > failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.record(req, nil, err)
		return nil, err
	}

	// 检查是否有预设错误
	if presetErr != nil {
		m.record(req, nil, presetErr)
		return nil, presetErr
	}

	// 使用自定义函数
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	if responder != nil {
		var err error
		content, err = responder(ctx, req)
		if err != nil {
			m.record(req, nil, err)
			return nil, err
		}
	}

	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		CreatedAt: time.Now(),
	}
	m.record(req, resp, nil)
	return resp, nil
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset 重置所有状态
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewFlakeyProvider 创建不稳定的 Provider（间歇性失败）
func NewFlakeyProvider(failAfter int, response string) *MockProvider {
	return NewMockProvider().
		WithResponse(response).
		WithFailAfter(failAfter)
}
