package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/BaSui01/researchflow/internal/cache"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/llm/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate limiting
// =============================================================================

type rateLimited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit bounds the query rate sent to the wrapped provider. A wave
// that fans out wider than burst waits for tokens instead of tripping the
// upstream 429. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) func(Provider) Provider {
	return func(p Provider) Provider {
		if rps <= 0 {
			return p
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

func (r *rateLimited) Search(ctx context.Context, query string) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.Error{
			Code:      llm.ErrRateLimited,
			Message:   err.Error(),
			Retryable: true,
			Provider:  r.Name(),
			Cause:     err,
		}
	}
	return r.Provider.Search(ctx, query)
}

// =============================================================================
// Retries
// =============================================================================

type retrying struct {
	Provider
	retryer retry.Retryer
}

// WithRetry retries retryable failures using policy. A nil policy uses
// retry.DefaultRetryPolicy; a policy without ShouldRetry retries only
// errors llm.IsRetryable accepts.
func WithRetry(policy *retry.RetryPolicy, logger *zap.Logger) func(Provider) Provider {
	return func(p Provider) Provider {
		if policy == nil {
			policy = retry.DefaultRetryPolicy()
		}
		pc := *policy
		if pc.ShouldRetry == nil {
			pc.ShouldRetry = llm.IsRetryable
		}
		return &retrying{Provider: p, retryer: retry.NewBackoffRetryer(&pc, logger)}
	}
}

func (r *retrying) Search(ctx context.Context, query string) ([]Result, error) {
	return retry.DoWithResult(ctx, r.retryer, func(ctx context.Context) ([]Result, error) {
		return r.Provider.Search(ctx, query)
	})
}

// =============================================================================
// Caching
// =============================================================================

// Store is the subset of *cache.Manager used for result caching.
type Store interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheObserver is notified of cache lookups. *metrics.Collector satisfies it.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type cached struct {
	Provider
	store    Store
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// CacheOption configures WithCache.
type CacheOption func(*cached)

// WithCacheObserver reports hits and misses to o.
func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *cached) { c.observer = o }
}

// WithCacheLogger sets the logger used for cache failures.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCache serves repeated queries from store. Cache failures are logged
// and the query goes to the provider; they never fail a search. Empty
// result lists are not cached, and entries that no longer decode are
// deleted before the fresh results are written.
func WithCache(store Store, ttl time.Duration, opts ...CacheOption) func(Provider) Provider {
	return func(p Provider) Provider {
		if store == nil {
			return p
		}
		c := &cached{Provider: p, store: store, ttl: ttl, logger: zap.NewNop()}
		for _, opt := range opts {
			opt(c)
		}
		c.logger = c.logger.With(zap.String("component", "search_cache"))
		return c
	}
}

// CacheKey returns the cache key for query under provider. Queries that
// differ only in case or surrounding whitespace share a key.
func CacheKey(provider, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "search:" + provider + ":" + hex.EncodeToString(sum[:])
}

func (c *cached) Search(ctx context.Context, query string) ([]Result, error) {
	key := CacheKey(c.Name(), query)

	var hits []Result
	err := c.store.GetJSON(ctx, key, &hits)
	switch {
	case err == nil:
		c.observe(true)
		return hits, nil
	case cache.IsCacheMiss(err):
		c.observe(false)
	case cache.IsInvalidValue(err):
		c.observe(false)
		c.logger.Warn("dropping unreadable search cache entry", zap.String("query", query), zap.Error(err))
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("search cache delete failed", zap.String("query", query), zap.Error(err))
		}
	default:
		c.observe(false)
		c.logger.Warn("search cache read failed", zap.String("query", query), zap.Error(err))
	}

	results, err := c.Provider.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		if err := c.store.SetJSON(ctx, key, results, c.ttl); err != nil {
			c.logger.Warn("search cache write failed", zap.String("query", query), zap.Error(err))
		}
	}
	return results, nil
}

func (c *cached) observe(hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.RecordCacheHit("search")
	} else {
		c.observer.RecordCacheMiss("search")
	}
}
