package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/llm/structured"
	"github.com/BaSui01/researchflow/testutil"
	"github.com/BaSui01/researchflow/testutil/fixtures"
	"github.com/BaSui01/researchflow/testutil/mocks"
	"github.com/BaSui01/researchflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

const finalAnswer = "Final answer citing [1]."

// scriptedProvider answers the query plan with plan, the n-th reflection
// with reflections[n] (repeating the last one) and any text request with
// finalAnswer.
func scriptedProvider(plan string, reflections ...string) *mocks.MockProvider {
	var n atomic.Int32
	return mocks.NewMockProvider().WithName("scripted").WithResponder(func(_ context.Context, req *llm.ChatRequest) (string, error) {
		if req.ResponseFormat == nil {
			return finalAnswer, nil
		}
		switch req.ResponseFormat.Name {
		case "query_plan":
			return plan, nil
		case "reflection_result":
			i := min(int(n.Add(1))-1, len(reflections)-1)
			return reflections[i], nil
		}
		return "", fmt.Errorf("unexpected response format %q", req.ResponseFormat.Name)
	})
}

func formatOf(req *llm.ChatRequest) string {
	if req.ResponseFormat == nil {
		return "text"
	}
	return req.ResponseFormat.Name
}

// requestsFor returns the requests sent for one response format, or "text".
func requestsFor(p *mocks.MockProvider, format string) []*llm.ChatRequest {
	var out []*llm.ChatRequest
	for _, c := range p.GetCalls() {
		if formatOf(c.Request) == format {
			out = append(out, c.Request)
		}
	}
	return out
}

func lastPrompt(t *testing.T, p *mocks.MockProvider, format string) string {
	t.Helper()
	reqs := requestsFor(p, format)
	require.NotEmpty(t, reqs, "no %s request", format)
	msgs := reqs[len(reqs)-1].Messages
	return msgs[len(msgs)-1].Content
}

func newTestAgent(t *testing.T, p llm.Provider, s Searcher, opts ...Option) *Agent {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewAgent(NewLLMGenerator(p), s, append(base, opts...)...)
}

func upstreamError(msg string) error {
	return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, Retryable: true, Provider: "tavily"}
}

// --- Scenarios ---

func TestScenario_SingleWaveSufficient(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("one aspect", "X query"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "X", RunConfig{NumberOfInitialQueries: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"X query"}, res.State.QueryList)
	assert.Equal(t, []string{"X query"}, searcher.Queries())
	assert.Equal(t, 1, res.Waves)
	assert.Equal(t, 1, res.State.LoopCount)
	assert.False(t, res.LoopCeilingReached)
	assert.Empty(t, res.BranchFailures)
	assert.Equal(t, finalAnswer, res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, mocks.DefaultResult("X query"), res.Sources[0])
	require.Len(t, res.State.Messages, 2)
	assert.Equal(t, llm.RoleAssistant, res.State.Messages[1].Role)
	assert.NotEmpty(t, res.RunID)

	assert.Contains(t, lastPrompt(t, provider, "query_plan"), "at most 1 queries")
	assert.Contains(t, lastPrompt(t, provider, "reflection_result"),
		"Source [1]: X query result\nURL: https://example.com/7\nContent: content about X query")
	assert.Contains(t, lastPrompt(t, provider, "text"), "[1]: [X query result](https://example.com/7)")
}

func TestScenario_ThreeWavesUntilSufficient(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("start", "q1"),
		fixtures.ReflectionJSON(false, "gap one", "f1"),
		fixtures.ReflectionJSON(false, "gap two", "f2"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{MaxResearchLoops: 5})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Waves)
	assert.Equal(t, 3, res.State.LoopCount)
	assert.True(t, res.State.IsSufficient)
	assert.False(t, res.LoopCeilingReached)
	assert.Equal(t, []string{"q1", "f1", "f2"}, res.State.SearchQueries)
	// the live list is the one the last wave ran over
	assert.Equal(t, []string{"f2"}, res.State.QueryList)
	assert.Equal(t, []string{"q1", "f1", "f2"}, searcher.Queries())
	assert.Len(t, res.State.WebResults, 3)
	assert.Len(t, res.Sources, 3)
	assert.Equal(t, finalAnswer, res.Answer)
	assert.Len(t, requestsFor(provider, "reflection_result"), 3)
}

func TestScenario_LoopCeilingForcesFinalize(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("start", "q1"),
		fixtures.ReflectionJSON(false, "always missing", "more"),
	)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{MaxResearchLoops: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Waves)
	assert.Equal(t, 1, res.State.LoopCount)
	assert.False(t, res.State.IsSufficient)
	assert.True(t, res.LoopCeilingReached)
	assert.Equal(t, []string{"q1"}, searcher.Queries())
	// no further wave, so the list is not replaced
	assert.Equal(t, []string{"q1"}, res.State.QueryList)
	assert.Equal(t, []string{"more"}, res.State.FollowUpQueries)
	assert.Equal(t, finalAnswer, res.Answer)
	assert.Len(t, requestsFor(provider, "text"), 1)
}

func TestScenario_FailedBranchLenient(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("three parts", "q1", "q2", "q3"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch().WithError("q2", upstreamError("search backend down"))
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)

	assert.Len(t, res.State.WebResults, 2)
	assert.Equal(t, []string{"q1", "q3"}, res.State.SearchQueries)
	assert.Len(t, res.Sources, 2)
	require.Len(t, res.BranchFailures, 1)

	failure := res.BranchFailures[0]
	assert.Equal(t, NodeWebResearch, failure.Node)
	assert.Equal(t, "q2", failure.Label)
	assert.Equal(t, 1, failure.Index)

	var pe *ProviderError
	require.ErrorAs(t, failure, &pe)
	assert.Equal(t, OpSearch, pe.Op)
	assert.Equal(t, "q2", pe.Query)
	assert.True(t, pe.Retryable())
	assert.Equal(t, finalAnswer, res.Answer)
}

func TestScenario_FailedBranchStrict(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("three parts", "q1", "q2", "q3"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch().
		WithError("q2", upstreamError("search backend down")).
		WithDelay("q3", 2*time.Second)
	agent := newTestAgent(t, provider, searcher, WithBranchPolicy(workflow.BranchPolicyStrict))

	start := time.Now()
	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.Error(t, err)
	assert.Nil(t, res)
	// the failure cancels the slow sibling
	assert.Less(t, time.Since(start), time.Second)

	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeWebResearch, re.Node)
	branch, ok := re.Branch()
	require.True(t, ok)
	assert.Equal(t, "q2", branch.Label)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "q2", pe.Query)
	assert.Empty(t, requestsFor(provider, "reflection_result"))
	assert.Empty(t, requestsFor(provider, "text"))
}

// --- Boundaries ---

func TestRun_EmptyQueryListGoesStraightToReflection(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("nothing to search"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)

	assert.Empty(t, searcher.Queries())
	assert.NotNil(t, res.State.QueryList)
	assert.Empty(t, res.State.QueryList)
	assert.Equal(t, 1, res.Waves)
	assert.Equal(t, 1, res.State.LoopCount)
	assert.Empty(t, res.Sources)
	assert.True(t, strings.HasSuffix(lastPrompt(t, provider, "reflection_result"), "Summaries:\n"))
	assert.Equal(t, finalAnswer, res.Answer)
}

func TestRun_CitationsMatchSourcePositions(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("two parts", "q1", "q2"),
		fixtures.ReflectionJSON(false, "one more", "f1"),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch().
		WithResults("q1",
			Source{Title: "A", URL: "https://a.example", Content: "a"},
			Source{Title: "B", URL: "https://b.example", Content: "b"},
		).
		WithResults("q2", Source{Title: "C", URL: "https://c.example", Content: "c"}).
		WithResults("f1", Source{Title: "D", URL: "https://d.example", Content: "d"}).
		// q1 finishes last but is merged first
		WithDelay("q1", 30*time.Millisecond)
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)

	titles := make([]string, len(res.Sources))
	for i, s := range res.Sources {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, titles)

	prompt := lastPrompt(t, provider, "text")
	for i, s := range res.Sources {
		assert.Contains(t, prompt, fmt.Sprintf("[%d]: [%s](%s)", i+1, s.Title, s.URL))
	}
	assert.Contains(t, prompt, CitationList(res.Sources))
	assert.Contains(t, prompt, strings.Join(res.State.WebResults, "\n---\n\n"))
}

func TestRun_PerRunModelOverrides(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", "q1"),
		fixtures.ReflectionJSON(true, ""),
	)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{
		QueryGeneratorModel: "m/query",
		ReflectionModel:     "m/reflect",
		AnswerModel:         "m/answer",
	})
	require.NoError(t, err)

	assert.Equal(t, "m/query", requestsFor(provider, "query_plan")[0].Model)
	assert.Equal(t, "m/reflect", requestsFor(provider, "reflection_result")[0].Model)
	assert.Equal(t, "m/answer", requestsFor(provider, "text")[0].Model)
}

func TestRun_DefaultModels(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", "q1"),
		fixtures.ReflectionJSON(true, ""),
	)
	defaults := RunConfig{
		NumberOfInitialQueries: 2,
		QueryGeneratorModel:    "d/query",
		ReflectionModel:        "d/reflect",
		AnswerModel:            "d/answer",
		MaxResearchLoops:       1,
	}
	agent := newTestAgent(t, provider, mocks.NewMockSearch(), WithDefaults(defaults))
	assert.Equal(t, defaults, agent.Defaults())

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaults, res.State.Config)
	assert.Equal(t, "d/query", requestsFor(provider, "query_plan")[0].Model)
	assert.Contains(t, lastPrompt(t, provider, "query_plan"), "at most 2 queries")
}

func TestRunMessages_Conversation(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", "q1"),
		fixtures.ReflectionJSON(true, ""),
	)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	res, err := agent.RunMessages(testutil.TestContext(t), []Message{
		{Role: llm.RoleUser, Content: "What is Go?"},
		{Role: llm.RoleAssistant, Content: "A language."},
		{Role: llm.RoleUser, Content: "Who designed it?"},
	}, RunConfig{})
	require.NoError(t, err)

	assert.Contains(t, lastPrompt(t, provider, "query_plan"),
		"User: What is Go?\nAssistant: A language.\nUser: Who designed it?")
	require.Len(t, res.State.Messages, 4)
	assert.Equal(t, finalAnswer, res.State.Messages[3].Content)
}

func TestRun_FencedStructuredReplies(t *testing.T) {
	provider := scriptedProvider(
		fixtures.Fenced(fixtures.QueryPlanJSON("r", "q1")),
		fixtures.Fenced(fixtures.ReflectionJSON(true, "")),
	)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, res.State.QueryList)
}

func TestRun_BlankQueriesAreDropped(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", " q1 ", "", "   "),
		fixtures.ReflectionJSON(true, ""),
	)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, res.State.QueryList)
	assert.Equal(t, []string{"q1"}, searcher.Queries())
}

func TestRun_StepGuardCoversLoopCeiling(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", "q1"),
		fixtures.ReflectionJSON(false, "gap", "more"),
	)
	agent := newTestAgent(t, provider, mocks.NewMockSearch(), WithMaxSteps(3))

	res, err := agent.Run(testutil.TestContext(t), "question", RunConfig{MaxResearchLoops: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, res.State.LoopCount)
	assert.Equal(t, 4, res.Waves)
	assert.Equal(t, 10, res.Steps)
}

func TestRun_StreamEvents(t *testing.T) {
	provider := scriptedProvider(
		fixtures.QueryPlanJSON("r", "q1", "q2"),
		fixtures.ReflectionJSON(true, ""),
	)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())
	rec := testutil.NewEventRecorder()
	ctx := workflow.WithStreamEmitter(testutil.TestContext(t), rec.Emit)

	res, err := agent.Run(ctx, "question", RunConfig{})
	require.NoError(t, err)

	waves := rec.OfType(workflow.EventWaveStart)
	require.Len(t, waves, res.Waves)
	assert.Equal(t, 2, waves[0].Count)
	assert.Len(t, rec.OfType(workflow.EventRunComplete), 1)
	for _, ev := range rec.Events() {
		assert.Equal(t, res.RunID, ev.RunID)
	}
}

// --- Errors ---

func TestRun_QueryGenerationFailureIsFatal(t *testing.T) {
	cause := &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", Provider: "openrouter"}
	provider := mocks.NewErrorProvider(cause)
	searcher := mocks.NewMockSearch()
	agent := newTestAgent(t, provider, searcher)

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	require.Error(t, err)

	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeGenerateQuery, re.Node)
	_, isBranch := re.Branch()
	assert.False(t, isBranch)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpGenerateStructured, pe.Op)
	assert.Equal(t, DefaultRunConfig().QueryGeneratorModel, pe.Model)
	assert.False(t, pe.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, searcher.Queries())
}

func TestRun_InvalidReflectionReplyIsFatal(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "q1"), `{"is_sufficient": "maybe"}`)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeReflection, re.Node)
	assert.True(t, structured.IsValidationError(err))
	assert.Empty(t, requestsFor(provider, "text"))
}

func TestRun_AnswerFailureIsFatal(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponder(func(_ context.Context, req *llm.ChatRequest) (string, error) {
		switch formatOf(req) {
		case "query_plan":
			return fixtures.QueryPlanJSON("r", "q1"), nil
		case "reflection_result":
			return fixtures.ReflectionJSON(true, ""), nil
		default:
			return "", &llm.Error{Code: llm.ErrModelOverloaded, Message: "busy", Retryable: true}
		}
	})
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeFinalizeAnswer, re.Node)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpGenerateText, pe.Op)
	assert.True(t, pe.Retryable())
}

func TestRun_ConfigurationErrorBeforeAnyStep(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "q1"), fixtures.ReflectionJSON(true, ""))
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{MaxResearchLoops: -1})
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
	assert.Equal(t, 0, provider.GetCallCount())

	_, err = agent.Run(testutil.TestContext(t), "  ", RunConfig{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	var ce *config.ConfigurationError
	assert.ErrorAs(t, err, &ce)
	_, err = agent.RunMessages(testutil.TestContext(t), nil, RunConfig{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.True(t, config.IsConfigurationError(err))
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "q1"), fixtures.ReflectionJSON(true, ""))
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	res, err := agent.Run(testutil.CancelledContext(), "question", RunConfig{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestRun_CallerDeadlineDuringQueryGeneration(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "q1"), fixtures.ReflectionJSON(true, "")).
		WithDelay(5 * time.Second)
	agent := newTestAgent(t, provider, mocks.NewMockSearch())

	_, err := agent.Run(testutil.TestContextWithTimeout(t, 30*time.Millisecond), "question", RunConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeGenerateQuery, re.Node)
}

func TestRun_CancellationAbortsInFlightBranches(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "slow"), fixtures.ReflectionJSON(true, ""))
	searcher := mocks.NewMockSearch().WithDelay("slow", 5*time.Second)
	agent := newTestAgent(t, provider, searcher)

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := agent.Run(ctx, "question", RunConfig{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)

	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NodeWebResearch, re.Node)
	assert.Empty(t, requestsFor(provider, "reflection_result"))
}

func TestRun_RunTimeout(t *testing.T) {
	provider := scriptedProvider(fixtures.QueryPlanJSON("r", "slow"), fixtures.ReflectionJSON(true, ""))
	searcher := mocks.NewMockSearch().WithDelay("slow", 5*time.Second)
	agent := newTestAgent(t, provider, searcher, WithRunTimeout(30*time.Millisecond))

	_, err := agent.Run(testutil.TestContext(t), "question", RunConfig{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultResearchConfig()
	cfg.BranchPolicy = "strict"
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	agent := NewAgent(nil, nil, opts...)
	assert.Equal(t, RunConfigFromConfig(cfg), agent.Defaults())
	assert.Equal(t, workflow.BranchPolicyStrict, agent.policy)
	assert.Equal(t, cfg.RunTimeout, agent.runTimeout)

	cfg.BranchPolicy = "sometimes"
	_, err = OptionsFromConfig(cfg)
	assert.True(t, config.IsConfigurationError(err))
}

func TestMermaid(t *testing.T) {
	m := Mermaid()
	assert.Contains(t, m, "start --> generate_query")
	assert.Contains(t, m, "generate_query -.-> web_research")
	assert.Contains(t, m, "web_research --> reflection")
	assert.Contains(t, m, "reflection -.-> finalize_answer")
	assert.Contains(t, m, "reflection -.-> web_research")
	assert.Contains(t, m, "finalize_answer --> end")

	_, err := NewAgent(nil, nil).Graph().Compile()
	assert.NoError(t, err)
}

// --- Properties ---

// Under the lenient policy a wave of k searches with f failures grows
// WebResults and SourcesGathered by exactly k-f entries, in dispatch order,
// whatever order the searches finish in.
func TestProperty_WaveGrowthUnderAnyCompletionOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(0, 6).Draw(rt, "k")
		queries := make([]string, k)
		searcher := mocks.NewMockSearch()
		var want []string
		failures := 0
		for i := range queries {
			queries[i] = fmt.Sprintf("query %d", i)
			delay := rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("delay%d", i))
			searcher.WithDelay(queries[i], time.Duration(delay)*time.Millisecond)
			if rapid.Bool().Draw(rt, fmt.Sprintf("fail%d", i)) {
				searcher.WithError(queries[i], upstreamError("flaky"))
				failures++
				continue
			}
			want = append(want, queries[i])
		}

		provider := scriptedProvider(
			fixtures.QueryPlanJSON("r", queries...),
			fixtures.ReflectionJSON(true, ""),
		)
		agent := NewAgent(NewLLMGenerator(provider), searcher, WithLogger(zap.NewNop()))

		res, err := agent.Run(context.Background(), "question", RunConfig{NumberOfInitialQueries: 6})
		if err != nil {
			rt.Fatalf("run failed: %v", err)
		}
		if got := len(res.State.WebResults); got != k-failures {
			rt.Fatalf("webResults grew by %d, want %d", got, k-failures)
		}
		if got := len(res.Sources); got != k-failures {
			rt.Fatalf("sourcesGathered grew by %d, want %d", got, k-failures)
		}
		if len(res.BranchFailures) != failures {
			rt.Fatalf("recorded %d failures, want %d", len(res.BranchFailures), failures)
		}
		for i, q := range want {
			if res.State.SearchQueries[i] != q || res.Sources[i].Title != q+" result" {
				rt.Fatalf("position %d holds %q, want %q", i, res.State.SearchQueries[i], q)
			}
		}
	})
}

// loopCount never exceeds the ceiling and the number of waves equals the
// number of reflections.
func TestProperty_LoopBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxLoops := rapid.IntRange(1, 5).Draw(rt, "maxLoops")
		sufficientAt := rapid.IntRange(1, 7).Draw(rt, "sufficientAt")

		reflections := make([]string, 0, sufficientAt)
		for i := 1; i < sufficientAt; i++ {
			reflections = append(reflections, fixtures.ReflectionJSON(false, "gap", fmt.Sprintf("follow %d", i)))
		}
		reflections = append(reflections, fixtures.ReflectionJSON(true, ""))

		provider := scriptedProvider(fixtures.QueryPlanJSON("r", "q"), reflections...)
		agent := NewAgent(NewLLMGenerator(provider), mocks.NewMockSearch(), WithLogger(zap.NewNop()))

		res, err := agent.Run(context.Background(), "question", RunConfig{MaxResearchLoops: maxLoops})
		if err != nil {
			rt.Fatalf("run failed: %v", err)
		}
		wantLoops := min(sufficientAt, maxLoops)
		if res.State.LoopCount != wantLoops || res.Waves != wantLoops {
			rt.Fatalf("loops=%d waves=%d, want %d", res.State.LoopCount, res.Waves, wantLoops)
		}
		if res.LoopCeilingReached != (sufficientAt > maxLoops) {
			rt.Fatalf("ceiling flag %v with sufficientAt=%d maxLoops=%d", res.LoopCeilingReached, sufficientAt, maxLoops)
		}
		if res.Answer != finalAnswer {
			rt.Fatalf("no answer")
		}
	})
}

func TestProviderError_Message(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, `search "q": boom`, (&ProviderError{Op: OpSearch, Query: "q", Err: cause}).Error())
	assert.Equal(t, "generate_text with m: boom", (&ProviderError{Op: OpGenerateText, Model: "m", Err: cause}).Error())
	assert.Equal(t, "generate_structured: boom", (&ProviderError{Op: OpGenerateStructured, Err: cause}).Error())
	assert.ErrorIs(t, &ProviderError{Op: OpSearch, Err: cause}, cause)
}
