package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError lists every problem found in a configuration. It is
// returned before any research step runs.
type ConfigurationError struct {
	Problems []string
	// Err 是可选的哨兵错误，供 errors.Is 匹配
	Err error
}

// NewConfigurationError wraps a sentinel so it is reachable through both
// errors.Is and errors.As.
func NewConfigurationError(err error) *ConfigurationError {
	return &ConfigurationError{Problems: []string{err.Error()}, Err: err}
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Addf records one problem.
func (e *ConfigurationError) Addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// ErrOrNil returns e when it holds at least one problem, nil otherwise.
func (e *ConfigurationError) ErrOrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Validate 验证配置，返回 *ConfigurationError
func (c *Config) Validate() error {
	errs := &ConfigurationError{}

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs.Addf("llm.api_key is required (set %s_LLM_API_KEY or %s)", "RESEARCHFLOW", FallbackLLMKeyEnv)
	}
	if strings.TrimSpace(c.Search.APIKey) == "" {
		errs.Addf("search.api_key is required (set %s_SEARCH_API_KEY or %s)", "RESEARCHFLOW", FallbackSearchKeyEnv)
	}
	c.Research.validate(errs)

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs.Addf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxRetries < 0 {
		errs.Addf("llm.max_retries must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		errs.Addf("search.max_results must be positive")
	}
	switch c.Search.Depth {
	case "basic", "advanced":
	default:
		errs.Addf("search.depth must be basic or advanced, got %q", c.Search.Depth)
	}
	if c.Search.RateLimitRPS < 0 {
		errs.Addf("search.rate_limit_rps must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs.Addf("cache.addr is required when the cache is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs.Addf("metrics.addr is required when metrics are enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs.Addf("telemetry.otlp_endpoint is required when telemetry is enabled")
	}

	return errs.ErrOrNil()
}

func (r ResearchConfig) validate(errs *ConfigurationError) {
	if r.NumberOfInitialQueries < 1 {
		errs.Addf("research.number_of_initial_queries must be at least 1")
	}
	if r.MaxResearchLoops < 1 {
		errs.Addf("research.max_research_loops must be at least 1")
	}
	if r.QueryGeneratorModel == "" {
		errs.Addf("research.query_generator_model is required")
	}
	if r.ReflectionModel == "" {
		errs.Addf("research.reflection_model is required")
	}
	if r.AnswerModel == "" {
		errs.Addf("research.answer_model is required")
	}
	switch strings.ToLower(strings.TrimSpace(r.BranchPolicy)) {
	case "", "lenient", "strict":
	default:
		errs.Addf("research.branch_policy must be lenient or strict, got %q", r.BranchPolicy)
	}
	if r.MaxConcurrency < 0 {
		errs.Addf("research.max_concurrency must not be negative")
	}
	if r.MaxSteps < 0 {
		errs.Addf("research.max_steps must not be negative")
	}
	if r.RunTimeout < 0 {
		errs.Addf("research.run_timeout must not be negative")
	}
}
