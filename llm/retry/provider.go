package retry

import (
	"context"

	"github.com/BaSui01/researchflow/llm"
	"go.uber.org/zap"
)

// RetryableProvider retries Completion calls whose error is an *llm.Error
// marked retryable. Other errors are returned as they are.
type RetryableProvider struct {
	llm.Provider
	retryer Retryer
}

// WrapProvider decorates p with policy. A nil policy uses DefaultRetryPolicy.
func WrapProvider(p llm.Provider, policy *RetryPolicy, logger *zap.Logger) *RetryableProvider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.ShouldRetry == nil {
		pp := *policy
		pp.ShouldRetry = llm.IsRetryable
		policy = &pp
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		Provider: p,
		retryer:  NewBackoffRetryer(policy, logger.With(zap.String("provider", p.Name()))),
	}
}

func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return DoWithResult(ctx, p.retryer, func(ctx context.Context) (*llm.ChatResponse, error) {
		return p.Provider.Completion(ctx, req)
	})
}
