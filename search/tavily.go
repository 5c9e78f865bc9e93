package search

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
	// DefaultTavilyBaseURL is the Tavily API root.
	DefaultTavilyBaseURL = "https://api.tavily.com"
	// DefaultMaxResults is the number of hits requested per query.
	DefaultMaxResults = 5
	// DefaultSearchDepth asks Tavily for its advanced (slower, fuller) mode.
	DefaultSearchDepth = "advanced"
)

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	// SearchDepth is "basic" or "advanced".
	SearchDepth string
	Timeout     time.Duration
	// IncludeDomains and ExcludeDomains narrow the search when set.
	IncludeDomains []string
	ExcludeDomains []string
}

// Tavily implements Provider over the Tavily search API.
type Tavily struct {
	cfg    TavilyConfig
	client *http.Client
	logger *zap.Logger
}

// NewTavily creates a Tavily client, filling zero config values with defaults.
func NewTavily(cfg TavilyConfig, logger *zap.Logger) *Tavily {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTavilyBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = DefaultSearchDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tavily{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "search"), zap.String("provider", "tavily")),
	}
}

// Name returns "tavily".
func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Query        string  `json:"query"`
	ResponseTime float64 `json:"response_time"`
	Results      []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one Tavily query.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "empty search query",
			HTTPStatus: http.StatusBadRequest,
			Provider:   t.Name(),
		}
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:          query,
		MaxResults:     t.cfg.MaxResults,
		SearchDepth:    t.cfg.SearchDepth,
		IncludeDomains: t.cfg.IncludeDomains,
		ExcludeDomains: t.cfg.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	providers.BearerTokenHeaders(req, t.cfg.APIKey)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.TransportError(err, t.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		t.logger.Warn("search failed",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, t.Name())
	}

	var body tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    fmt.Sprintf("decode search response: %v", err),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   t.Name(),
			Cause:      err,
		}
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}

	t.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}
