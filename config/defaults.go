// =============================================================================
// 📦 ResearchFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Research:  DefaultResearchConfig(),
		LLM:       DefaultLLMConfig(),
		Search:    DefaultSearchConfig(),
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultResearchConfig 返回默认研究流程配置
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		NumberOfInitialQueries: 3,
		QueryGeneratorModel:    "google/gemini-2.0-flash-001",
		ReflectionModel:        "google/gemini-2.5-flash",
		AnswerModel:            "google/gemini-2.5-pro",
		MaxResearchLoops:       2,
		BranchPolicy:           "lenient",
		MaxConcurrency:         0,
		MaxSteps:               25,
		RunTimeout:             10 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:                "https://openrouter.ai/api/v1",
		Timeout:                60 * time.Second,
		MaxRetries:             2,
		Temperature:            1.0,
		NativeStructuredOutput: true,
		Referer:                "http://localhost",
		Title:                  "researchflow",
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BaseURL:        "https://api.tavily.com",
		MaxResults:     5,
		Depth:          "advanced",
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RateLimitRPS:   0,
		RateLimitBurst: 1,
		CacheTTL:       24 * time.Hour,
	}
}

// DefaultCacheConfig 返回默认缓存配置（默认关闭）
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		DB:        0,
		KeyPrefix: "researchflow:",
		PoolSize:  10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "researchflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "researchflow",
	}
}
