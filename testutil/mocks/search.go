package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/researchflow/search"
)

// MockSearch 是 search.Provider 的模拟实现，可并发调用。
// 默认对每个查询返回一条 "<query> result" 结果。
type MockSearch struct {
	mu sync.RWMutex

	results map[string][]search.Result
	errs    map[string]error
	delays  map[string]time.Duration
	fn      func(ctx context.Context, query string) ([]search.Result, error)

	queries []string
}

// NewMockSearch 创建新的 MockSearch
func NewMockSearch() *MockSearch {
	return &MockSearch{
		results: make(map[string][]search.Result),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

// WithResults 设置某个查询的结果
func (m *MockSearch) WithResults(query string, results ...search.Result) *MockSearch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[query] = results
	return m
}

// WithError 让某个查询失败
func (m *MockSearch) WithError(query string, err error) *MockSearch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[query] = err
	return m
}

// WithDelay 设置某个查询的延迟，延迟期间响应 ctx 取消
func (m *MockSearch) WithDelay(query string, d time.Duration) *MockSearch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[query] = d
	return m
}

// WithSearchFunc 设置自定义 Search 函数，优先于其他配置
func (m *MockSearch) WithSearchFunc(fn func(ctx context.Context, query string) ([]search.Result, error)) *MockSearch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockSearch) Name() string { return "mock_search" }

// Search 执行模拟搜索
func (m *MockSearch) Search(ctx context.Context, query string) ([]search.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	fn := m.fn
	delay := m.delays[query]
	err := m.errs[query]
	results, ok := m.results[query]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fn != nil {
		return fn(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		results = []search.Result{DefaultResult(query)}
	}
	return append([]search.Result(nil), results...), nil
}

// Queries 返回收到的查询，按调用顺序
func (m *MockSearch) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

// DefaultResult 是未配置查询的默认结果
func DefaultResult(query string) search.Result {
	return search.Result{
		Title:   query + " result",
		URL:     fmt.Sprintf("https://example.com/%d", len(query)),
		Content: "content about " + query,
	}
}
