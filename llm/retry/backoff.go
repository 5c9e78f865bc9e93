package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	Multiplier   float64       // 指数退避倍数
	Jitter       bool          // ±25% 随机抖动
	// ShouldRetry decides whether err is worth another attempt. Nil retries
	// every error except context cancellation.
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy mirrors the model client defaults: two retries with
// exponential backoff.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do runs fn until it succeeds, returns a non-retryable error, or the
	// policy is exhausted.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	p := *policy
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &backoffRetryer{
		policy: &p,
		logger: logger.With(zap.String("component", "retry")),
		sleep:  sleepCtx,
	}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			if err := r.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry cancelled: %w", errors.Join(err, lastErr))
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !r.isRetryable(ctx, lastErr) {
			return lastErr
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// calculateDelay computes initial * multiplier^(attempt-1), capped at
// MaxDelay, with optional ±25% jitter and never below InitialDelay.
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
