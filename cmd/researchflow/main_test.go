package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/llm/providers"
	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/search"
	rftest "github.com/BaSui01/researchflow/testutil"
	"github.com/BaSui01/researchflow/testutil/fixtures"
	"github.com/BaSui01/researchflow/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeOpenRouter answers the query plan, the reflection and the final
// answer the way a chat completions endpoint would.
func fakeOpenRouter(t *testing.T, queries ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body providers.OpenAICompatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content := "Go was designed at Google [1]."
		if rf := body.ResponseFormat; rf != nil && rf.JSONSchema != nil {
			switch rf.JSONSchema.Name {
			case "query_plan":
				content = fixtures.QueryPlanJSON("plan", queries...)
			case "reflection_result":
				content = fixtures.ReflectionJSON(true, "")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			ID:      "cmpl",
			Model:   body.Model,
			Created: time.Now().Unix(),
			Choices: []providers.OpenAICompatChoice{{
				FinishReason: "stop",
				Message:      providers.OpenAICompatMessage{Role: "assistant", Content: content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeTavily returns one hit per query and counts requests.
func fakeTavily(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": req.Query,
			"results": []map[string]any{{
				"title":   req.Query + " page",
				"url":     "https://example.com/" + strings.ReplaceAll(req.Query, " ", "-"),
				"content": "about " + req.Query,
				"score":   0.9,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(llmURL, searchURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = llmURL
	cfg.LLM.MaxRetries = 0
	cfg.Search.APIKey = "tvly-test"
	cfg.Search.BaseURL = searchURL
	cfg.Search.MaxRetries = 0
	cfg.Log.Level = "error"
	return cfg
}

func TestRunResearch_EndToEnd(t *testing.T) {
	var searches atomic.Int32
	llmSrv := fakeOpenRouter(t, "go history", "go designers")
	searchSrv := fakeTavily(t, &searches)
	cfg := testConfig(llmSrv.URL, searchSrv.URL)
	require.NoError(t, cfg.Validate())

	var stdout, stderr bytes.Buffer
	err := runResearch(context.Background(), cfg, "Who designed Go?", runFlags{jsonOut: true}, &stdout, &stderr)
	require.NoError(t, err)

	out := rftest.MustParseJSON[jsonResult](stdout.String())
	assert.Equal(t, "Go was designed at Google [1].", out.Answer)
	assert.Equal(t, []string{"go history", "go designers"}, out.SearchQueries)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "go history page", out.Sources[0].Title)
	assert.Equal(t, 1, out.Loops)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, int32(2), searches.Load())

	progress := stderr.String()
	assert.Contains(t, progress, "planning search queries")
	assert.Contains(t, progress, "research loop 1: 2 queries")
	assert.Contains(t, progress, "writing answer")
}

func TestRunResearch_MarkdownOutput(t *testing.T) {
	var searches atomic.Int32
	cfg := testConfig(fakeOpenRouter(t, "q1").URL, fakeTavily(t, &searches).URL)

	var stdout bytes.Buffer
	err := runResearch(context.Background(), cfg, "question", runFlags{quiet: true}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "Go was designed at Google [1].\n\n## Sources\n\n1. [q1 page](https://example.com/q1)\n", stdout.String())
}

func TestRunResearch_StrictSearchFailure(t *testing.T) {
	llmSrv := fakeOpenRouter(t, "q1", "q2")
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	t.Cleanup(searchSrv.Close)

	cfg := testConfig(llmSrv.URL, searchSrv.URL)
	cfg.Research.BranchPolicy = "strict"

	err := runResearch(context.Background(), cfg, "question", runFlags{quiet: true}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, research.NodeWebResearch, re.Node)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestRunResearch_LenientSearchFailureStillAnswers(t *testing.T) {
	llmSrv := fakeOpenRouter(t, "q1")
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(searchSrv.Close)

	var stdout, stderr bytes.Buffer
	err := runResearch(context.Background(), testConfig(llmSrv.URL, searchSrv.URL), "question", runFlags{jsonOut: true}, &stdout, &stderr)
	require.NoError(t, err)

	out := rftest.MustParseJSON[jsonResult](stdout.String())
	assert.Equal(t, []string{"q1"}, out.FailedSearches)
	assert.Empty(t, out.Sources)
	assert.Contains(t, stderr.String(), `search "q1" failed`)
}

func TestBuildApp_WithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	var searches atomic.Int32
	cfg := testConfig(fakeOpenRouter(t, "cached query").URL, fakeTavily(t, &searches).URL)
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()

	a, err := buildApp(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	for range 2 {
		res, err := a.agent.Run(context.Background(), "question", research.RunConfig{})
		require.NoError(t, err)
		require.Len(t, res.Sources, 1)
	}
	// second run is served from redis
	assert.Equal(t, int32(1), searches.Load())
	assert.NotEmpty(t, mr.Keys())

	count, err := testutil.GatherAndCount(a.registry, "researchflow_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	a.recordCacheStats(zaptest.NewLogger(t))
	assert.Equal(t, float64(len(mr.Keys())), gaugeValue(t, a, "researchflow_cache_keys"))
	assert.GreaterOrEqual(t, gaugeValue(t, a, "researchflow_cache_connections"), 1.0)
}

func gaugeValue(t *testing.T, a *app, name string) float64 {
	t.Helper()
	families, err := a.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestBuildApp_CacheUnavailable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = "127.0.0.1:1"

	_, err := buildApp(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestBuildApp_RecordsMetrics(t *testing.T) {
	var searches atomic.Int32
	cfg := testConfig(fakeOpenRouter(t, "q1").URL, fakeTavily(t, &searches).URL)

	a, err := buildApp(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx := workflow.WithStreamEmitter(context.Background(), a.collector.StreamEmitter(research.GraphName))
	_, err = a.agent.Run(ctx, "question", research.RunConfig{})
	require.NoError(t, err)

	for _, name := range []string{
		"researchflow_runs_total",
		"researchflow_llm_requests_total",
		"researchflow_search_requests_total",
	} {
		count, err := testutil.GatherAndCount(a.registry, name)
		require.NoError(t, err)
		assert.Positive(t, count, name)
	}

	// cache disabled: no backend snapshot
	a.recordCacheStats(zap.NewNop())
	count, err := testutil.GatherAndCount(a.registry, "researchflow_cache_keys")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunCmd_ConfigurationErrorExitCode(t *testing.T) {
	for _, key := range []string{"RESEARCHFLOW_LLM_API_KEY", "RESEARCHFLOW_SEARCH_API_KEY", config.FallbackLLMKeyEnv, config.FallbackSearchKeyEnv} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("research:\n  max_research_loops: 2\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", path, "question"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()

	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
	assert.Equal(t, exitConfigError, exitCode(err))
}

func TestLoadConfig_EnvironmentOnly(t *testing.T) {
	t.Setenv("RESEARCHFLOW_LLM_API_KEY", "sk-env")
	t.Setenv("RESEARCHFLOW_SEARCH_API_KEY", "tvly-env")
	t.Setenv("RESEARCHFLOW_RESEARCH_MAX_RESEARCH_LOOPS", "4")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "tvly-env", cfg.Search.APIKey)
	assert.Equal(t, 4, cfg.Research.MaxResearchLoops)

	t.Setenv("RESEARCHFLOW_SEARCH_API_KEY", "")
	t.Setenv(config.FallbackSearchKeyEnv, "")
	_, err = loadConfig("")
	assert.True(t, config.IsConfigurationError(err))
}

func TestRunCmd_RequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "researchflow dev\n"))
	assert.Contains(t, out.String(), "Git Commit: unknown")
}

func TestGraphCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"graph"})
	require.NoError(t, root.Execute())
	assert.Equal(t, research.Mermaid(), out.String())
	assert.Contains(t, out.String(), "reflection -.-> web_research")
}

func TestProgressEmitter(t *testing.T) {
	var buf bytes.Buffer
	emit := progressEmitter(&buf)
	emit(workflow.StreamEvent{Type: workflow.EventNodeStart, Node: research.NodeGenerateQuery})
	emit(workflow.StreamEvent{Type: workflow.EventWaveStart, Node: research.NodeWebResearch, Wave: 2, Count: 3})
	emit(workflow.StreamEvent{Type: workflow.EventNodeStart, Node: research.NodeWebResearch, Label: "go"})
	emit(workflow.StreamEvent{Type: workflow.EventBranchError, Node: research.NodeWebResearch, Label: "go", Error: errors.New("down")})
	emit(workflow.StreamEvent{Type: workflow.EventRunComplete})

	assert.Equal(t,
		"• planning search queries\n"+
			"• research loop 2: 3 queries\n"+
			"  ↳ searching \"go\"\n"+
			"  ✗ search \"go\" failed: down\n",
		buf.String())
}

func TestAnswerMarkdown(t *testing.T) {
	res := &research.Result{
		Answer:             "  Answer [1].\n",
		Sources:            []search.Result{{Title: "Go", URL: "https://go.dev"}},
		LoopCeilingReached: true,
	}
	md := answerMarkdown(res)
	assert.True(t, strings.HasPrefix(md, "Answer [1].\n\n## Sources\n\n1. [Go](https://go.dev)\n"))
	assert.Contains(t, md, "loop limit")

	// not a terminal
	var buf bytes.Buffer
	assert.Equal(t, md, renderMarkdown(&buf, md))

	assert.Equal(t, "plain\n", answerMarkdown(&research.Result{Answer: "plain"}))
}

func TestInitLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}},
		{Level: "WARN", Format: "json"},
		{Level: "nonsense", Format: "json", OutputPaths: []string{"stdout"}},
	} {
		logger := initLogger(cfg)
		require.NotNil(t, logger)
		_ = logger.Sync()
	}
	assert.True(t, initLogger(config.LogConfig{Level: "debug", Format: "json"}).Core().Enabled(zap.DebugLevel))
	assert.False(t, initLogger(config.LogConfig{Level: "nonsense"}).Core().Enabled(zap.DebugLevel))
}
