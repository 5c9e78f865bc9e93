// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/researchflow/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 工作流运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 节点指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	// 扇出指标
	waveSize            *prometheus.HistogramVec
	branchFailuresTotal *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 搜索指标
	searchRequestsTotal   *prometheus.CounterVec
	searchRequestDuration *prometheus.HistogramVec
	searchResults         *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 缓存服务端快照
	cacheKeys         *prometheus.GaugeVec
	cacheMemoryBytes  *prometheus.GaugeVec
	cacheServerHits   *prometheus.GaugeVec
	cacheServerMisses *prometheus.GaugeVec
	cacheConnections  *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建注册到默认 Registry 的指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建注册到 reg 的指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"graph", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"graph"},
	)

	// 节点指标
	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions, fan-out branches included",
		},
		[]string{"graph", "node", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"graph", "node"},
	)

	// 扇出指标
	c.waveSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wave_size",
			Help:      "Number of branches dispatched per fan-out wave",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"graph", "node"},
	)

	c.branchFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_failures_total",
			Help:      "Total number of failed fan-out branches",
		},
		[]string{"graph", "node"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 搜索指标
	c.searchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of web search requests",
		},
		[]string{"provider", "status"},
	)

	c.searchRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_request_duration_seconds",
			Help:      "Web search request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	c.searchResults = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"provider"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.cacheKeys = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_keys",
			Help:      "Keys held by the cache backend",
		},
		[]string{"cache_type"},
	)

	c.cacheMemoryBytes = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_memory_bytes",
			Help:      "Memory used by the cache backend",
		},
		[]string{"cache_type"},
	)

	c.cacheServerHits = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_server_keyspace_hits",
			Help:      "Keyspace hits reported by the cache backend",
		},
		[]string{"cache_type"},
	)

	c.cacheServerMisses = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_server_keyspace_misses",
			Help:      "Keyspace misses reported by the cache backend",
		},
		[]string{"cache_type"},
	)

	c.cacheConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_connections",
			Help:      "Clients connected to the cache backend",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordRun 记录一次工作流运行
func (c *Collector) RecordRun(graph, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(graph, status).Inc()
	c.runDuration.WithLabelValues(graph).Observe(duration.Seconds())
}

// RecordNode 记录一次节点执行
func (c *Collector) RecordNode(graph, node, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(graph, node, status).Inc()
	c.nodeDuration.WithLabelValues(graph, node).Observe(duration.Seconds())
}

// RecordWave 记录一次扇出的分支数
func (c *Collector) RecordWave(graph, node string, size int) {
	c.waveSize.WithLabelValues(graph, node).Observe(float64(size))
}

// RecordBranchFailure 记录一个失败的扇出分支
func (c *Collector) RecordBranchFailure(graph, node string) {
	c.branchFailuresTotal.WithLabelValues(graph, node).Inc()
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🔍 搜索指标记录
// =============================================================================

// RecordSearch 记录搜索请求
func (c *Collector) RecordSearch(provider, status string, duration time.Duration, results int) {
	c.searchRequestsTotal.WithLabelValues(provider, status).Inc()
	c.searchRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if status == StatusSuccess {
		c.searchResults.WithLabelValues(provider).Observe(float64(results))
	}
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// CacheStatsSource is satisfied by *cache.Manager.
type CacheStatsSource interface {
	GetStats(ctx context.Context) (*cache.Stats, error)
}

// RecordCacheStats 记录缓存服务端统计快照
func (c *Collector) RecordCacheStats(cacheType string, stats *cache.Stats) {
	if stats == nil {
		return
	}
	c.cacheKeys.WithLabelValues(cacheType).Set(float64(stats.Keys))
	c.cacheMemoryBytes.WithLabelValues(cacheType).Set(float64(stats.UsedMemory))
	c.cacheServerHits.WithLabelValues(cacheType).Set(float64(stats.Hits))
	c.cacheServerMisses.WithLabelValues(cacheType).Set(float64(stats.Misses))
	c.cacheConnections.WithLabelValues(cacheType).Set(float64(stats.Connections))
}

// CollectCacheStats 从 src 读取统计快照并记录
func (c *Collector) CollectCacheStats(ctx context.Context, cacheType string, src CacheStatsSource) error {
	stats, err := src.GetStats(ctx)
	if err != nil {
		c.logger.Debug("cache stats unavailable", zap.String("cache_type", cacheType), zap.Error(err))
		return err
	}
	c.RecordCacheStats(cacheType, stats)
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// statusOf 将错误转换为 status label
func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
