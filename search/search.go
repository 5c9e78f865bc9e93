// Package search defines the web search capability used by the research
// nodes and its Tavily implementation, plus wrappers for rate limiting,
// caching and retries.
package search

import (
	"context"
)

// Result is one ranked search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Provider executes a search query and returns results in rank order.
// Failures are *llm.Error values so retry and status handling are shared
// with the model client.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Name() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, query string) ([]Result, error)
}

// Search calls Fn.
func (f ProviderFunc) Search(ctx context.Context, query string) ([]Result, error) {
	return f.Fn(ctx, query)
}

// Name returns ProviderName.
func (f ProviderFunc) Name() string { return f.ProviderName }

// Chain wraps p with the given middlewares, outermost first.
func Chain(p Provider, mws ...func(Provider) Provider) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}
