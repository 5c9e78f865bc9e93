// =============================================================================
// ResearchFlow OpenAI-Compatible Provider
// =============================================================================
// Chat completions against any OpenAI-compatible endpoint. OpenRouter is the
// default target; headers and endpoints are configurable for other gateways.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/researchflow/internal/tlsutil"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/llm/providers"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTemperature matches the sampling temperature used for every
	// research step.
	DefaultTemperature float32 = 1.0
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider. Defaults to "openrouter".
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Temperature applies when a request does not set one. Nil means DefaultTemperature.
	Temperature *float32

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions path. Defaults to "/chat/completions".
	EndpointPath string

	// ModelsEndpoint is used for health checks. Defaults to "/models".
	ModelsEndpoint string

	// Referer and Title populate OpenRouter's attribution headers when set.
	Referer string
	Title   string

	// BuildHeaders overrides the default bearer authentication headers.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider implements llm.Provider over the OpenAI chat completions API.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openrouter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("component", "llm"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	providers.BearerTokenHeaders(req, p.Cfg.APIKey)
	if p.Cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", p.Cfg.Referer)
	}
	if p.Cfg.Title != "" {
		req.Header.Set("X-Title", p.Cfg.Title)
	}
}

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "request has no messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	model := providers.ChooseModel(req, p.Cfg.DefaultModel, "")
	if model == "" {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "no model specified",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
		if p.Cfg.Temperature != nil {
			temperature = *p.Cfg.Temperature
		}
	}

	body := providers.OpenAICompatRequest{
		Model:          model,
		Messages:       providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:      req.MaxTokens,
		Temperature:    &temperature,
		TopP:           req.TopP,
		Stop:           req.Stop,
		ResponseFormat: providers.ConvertResponseFormat(req.ResponseFormat),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Warn("completion failed",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Cause: err,
		}
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	p.Logger.Debug("completion succeeded",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}
