package main

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/internal/cache"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/llm/providers/openaicompat"
	"github.com/BaSui01/researchflow/llm/retry"
	"github.com/BaSui01/researchflow/llm/structured"
	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the wired research agent and the resources it owns.
type app struct {
	agent     *research.Agent
	collector *metrics.Collector
	registry  *prometheus.Registry
	store     *cache.Manager
	closers   []func() error
}

// buildApp wires provider, search and agent from cfg. cfg must already be
// validated.
func buildApp(cfg *config.Config, logger *zap.Logger, tracer trace.Tracer) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, a.registry, logger)

	searcher, err := a.buildSearch(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts, err := research.OptionsFromConfig(cfg.Research)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	opts = append(opts, research.WithLogger(logger))
	if tracer != nil {
		opts = append(opts, research.WithTracer(tracer))
	}

	a.agent = research.NewAgent(buildGenerator(cfg.LLM, a.collector, logger), searcher, opts...)
	return a, nil
}

// buildGenerator: openaicompat -> metrics -> retry -> structured output.
func buildGenerator(cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) *research.LLMGenerator {
	temperature := float32(cfg.Temperature)
	var provider llm.Provider = openaicompat.New(openaicompat.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: &temperature,
		Timeout:     cfg.Timeout,
		Referer:     cfg.Referer,
		Title:       cfg.Title,
	}, logger)
	provider = collector.InstrumentProvider(provider)

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.ShouldRetry = llm.IsRetryable
	provider = retry.WrapProvider(provider, policy, logger)

	return research.NewLLMGenerator(provider,
		structured.WithNativeSchema(cfg.NativeStructuredOutput),
		structured.WithLogger(logger),
	)
}

// buildSearch: tavily -> metrics -> rate limit -> retry -> redis cache.
func (a *app) buildSearch(cfg *config.Config, logger *zap.Logger) (search.Provider, error) {
	sc := cfg.Search
	var provider search.Provider = search.NewTavily(search.TavilyConfig{
		APIKey:      sc.APIKey,
		BaseURL:     sc.BaseURL,
		MaxResults:  sc.MaxResults,
		SearchDepth: sc.Depth,
		Timeout:     sc.Timeout,
	}, logger)
	provider = a.collector.InstrumentSearch(provider)

	if sc.RateLimitRPS > 0 {
		provider = search.WithRateLimit(sc.RateLimitRPS, sc.RateLimitBurst)(provider)
	}

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = sc.MaxRetries
	policy.ShouldRetry = llm.IsRetryable
	provider = search.WithRetry(policy, logger)(provider)

	if !cfg.Cache.Enabled {
		return provider, nil
	}
	cc := cache.DefaultConfig()
	cc.Addr = cfg.Cache.Addr
	cc.Password = cfg.Cache.Password
	cc.DB = cfg.Cache.DB
	cc.KeyPrefix = cfg.Cache.KeyPrefix
	cc.PoolSize = cfg.Cache.PoolSize
	cc.TLSEnabled = cfg.Cache.TLSEnabled
	cc.DefaultTTL = sc.CacheTTL

	store, err := cache.NewManager(cc, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	return search.WithCache(store, sc.CacheTTL,
		search.WithCacheObserver(a.collector),
		search.WithCacheLogger(logger),
	)(provider), nil
}

// recordCacheStats copies the Redis server stats into the metrics registry.
// It is a no-op when the cache is disabled.
func (a *app) recordCacheStats(logger *zap.Logger) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.collector.CollectCacheStats(ctx, "search", a.store); err != nil {
		logger.Warn("cache stats unavailable", zap.Error(err))
	}
}

// Close releases the resources opened by buildApp.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
