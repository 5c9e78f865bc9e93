// =============================================================================
// 📦 ResearchFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("researchflow.yaml").
//	    WithEnvPrefix("RESEARCHFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 凭据回退变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ResearchFlow 的完整配置结构
type Config struct {
	// Research 研究流程配置
	Research ResearchConfig `yaml:"research" env:"RESEARCH"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Search 网页搜索配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Cache 搜索结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ResearchConfig 研究流程配置，对应单次运行的默认 RunConfig
type ResearchConfig struct {
	// 初始搜索查询数量
	NumberOfInitialQueries int `yaml:"number_of_initial_queries" env:"NUMBER_OF_INITIAL_QUERIES"`
	// 查询生成模型
	QueryGeneratorModel string `yaml:"query_generator_model" env:"QUERY_GENERATOR_MODEL"`
	// 反思模型
	ReflectionModel string `yaml:"reflection_model" env:"REFLECTION_MODEL"`
	// 最终回答模型
	AnswerModel string `yaml:"answer_model" env:"ANSWER_MODEL"`
	// 最大研究循环次数（包含上限）
	MaxResearchLoops int `yaml:"max_research_loops" env:"MAX_RESEARCH_LOOPS"`
	// 分支失败策略: lenient, strict
	BranchPolicy string `yaml:"branch_policy" env:"BRANCH_POLICY"`
	// 单个扇出批次的最大并发，0 表示不限制
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 单次运行的最大步数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 单次运行超时，0 表示不限制
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（默认 OpenRouter）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 采样温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 是否发送 json_schema response_format
	NativeStructuredOutput bool `yaml:"native_structured_output" env:"NATIVE_STRUCTURED_OUTPUT"`
	// OpenRouter 归属头
	Referer string `yaml:"referer" env:"REFERER"`
	Title   string `yaml:"title" env:"TITLE"`
}

// SearchConfig 搜索配置
type SearchConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（默认 Tavily）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 每次查询的最大结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 搜索深度: basic, advanced
	Depth string `yaml:"depth" env:"DEPTH"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每秒请求数限制，0 表示不限制
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// CacheConfig Redis 缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 是否启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// 未设置前缀变量时读取的凭据变量
const (
	FallbackLLMKeyEnv    = "OPENROUTER_API_KEY"
	FallbackSearchKeyEnv = "TAVILY_API_KEY"
)

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RESEARCHFLOW",
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup 替换环境变量读取函数（测试用）
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookupEnv = fn
	}
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.applyCredentialFallbacks(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// applyCredentialFallbacks 读取不带前缀的服务商凭据变量
func (l *Loader) applyCredentialFallbacks(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if v, ok := l.lookupEnv(FallbackLLMKeyEnv); ok {
			cfg.LLM.APIKey = strings.TrimSpace(v)
		}
	}
	if cfg.Search.APIKey == "" {
		if v, ok := l.lookupEnv(FallbackSearchKeyEnv); ok {
			cfg.Search.APIKey = strings.TrimSpace(v)
		}
	}
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// LoadFromEnv 仅从默认值与环境变量加载配置，不读取配置文件
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
