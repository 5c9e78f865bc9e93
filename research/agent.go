package research

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrEmptyQuestion is wrapped in a *config.ConfigurationError when a run
// has no question to research.
var ErrEmptyQuestion = errors.New("research question is empty")

// Agent runs the research graph. It is safe for concurrent runs.
type Agent struct {
	graph          *workflow.Graph[State, Update]
	defaults       RunConfig
	policy         workflow.BranchPolicy
	maxConcurrency int
	maxSteps       int
	runTimeout     time.Duration
	clock          Clock
	tracer         trace.Tracer
	logger         *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDefaults sets the run config that per-run overrides are merged into.
func WithDefaults(rc RunConfig) Option {
	return func(a *Agent) { a.defaults = rc }
}

// WithBranchPolicy selects how failed web_research branches are handled.
func WithBranchPolicy(p workflow.BranchPolicy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithMaxConcurrency bounds the branches of one wave running at once.
// Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(a *Agent) { a.maxConcurrency = n }
}

// WithMaxSteps sets the step guard. A run is always allowed enough steps to
// reach its loop ceiling.
func WithMaxSteps(n int) Option {
	return func(a *Agent) { a.maxSteps = n }
}

// WithRunTimeout bounds the duration of one run. Zero disables it.
func WithRunTimeout(d time.Duration) Option {
	return func(a *Agent) { a.runTimeout = d }
}

// WithClock sets the clock used for the date in prompts.
func WithClock(c Clock) Option {
	return func(a *Agent) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithTracer sets the tracer for run, node and branch spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

// OptionsFromConfig translates the research section of the configuration
// into agent options.
func OptionsFromConfig(c config.ResearchConfig) ([]Option, error) {
	policy, err := workflow.ParseBranchPolicy(c.BranchPolicy)
	if err != nil {
		return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
	}
	return []Option{
		WithDefaults(RunConfigFromConfig(c)),
		WithBranchPolicy(policy),
		WithMaxConcurrency(c.MaxConcurrency),
		WithMaxSteps(c.MaxSteps),
		WithRunTimeout(c.RunTimeout),
	}, nil
}

// NewAgent creates an agent that generates with gen and searches with
// searcher.
func NewAgent(gen Generator, searcher Searcher, opts ...Option) *Agent {
	a := &Agent{
		defaults: DefaultRunConfig(),
		policy:   workflow.BranchPolicyLenient,
		maxSteps: workflow.DefaultMaxSteps,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.graph = NewGraph(gen, searcher, a.logger, a.clock)
	a.logger = a.logger.With(zap.String("component", "agent"))
	return a
}

// Graph returns the uncompiled research graph.
func (a *Agent) Graph() *workflow.Graph[State, Update] { return a.graph }

// Defaults returns the run config overrides are merged into.
func (a *Agent) Defaults() RunConfig { return a.defaults }

// Result is the outcome of a completed run.
type Result struct {
	RunID string
	State State
	// Answer is the final assistant message, with inline [n] citations
	// matching the 1-based index into Sources.
	Answer  string
	Sources []Source
	// BranchFailures lists the searches dropped under the lenient policy.
	BranchFailures []*workflow.BranchError
	// LoopCeilingReached is set when the loop ended on MaxResearchLoops
	// while the reflection still judged the research insufficient.
	LoopCeilingReached bool
	Steps              int
	Waves              int
	History            *workflow.ExecutionHistory
}

// Run researches question. Non-zero fields of overrides replace the
// agent defaults for this run only.
func (a *Agent) Run(ctx context.Context, question string, overrides RunConfig) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, config.NewConfigurationError(ErrEmptyQuestion)
	}
	return a.RunMessages(ctx, []Message{{Role: llm.RoleUser, Content: question}}, overrides)
}

// RunMessages researches the last question of a conversation, using the
// earlier turns as context.
//
// Configuration problems are returned as *config.ConfigurationError before
// any step runs. Every other failure is a *workflow.RunError naming the
// failed node; for a strict wave it wraps the *workflow.BranchError of the
// failed search.
func (a *Agent) RunMessages(ctx context.Context, messages []Message, overrides RunConfig) (*Result, error) {
	if len(messages) == 0 {
		return nil, config.NewConfigurationError(ErrEmptyQuestion)
	}
	rc := a.defaults.Merge(overrides)
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	compiled, err := a.graph.Compile(a.compileOptions(rc)...)
	if err != nil {
		return nil, err
	}

	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))
	logger.Info("research started",
		zap.Int("initial_queries", rc.NumberOfInitialQueries),
		zap.Int("max_loops", rc.MaxResearchLoops),
		zap.String("branch_policy", string(compiled.BranchPolicy())),
	)

	initial := State{
		Messages: append([]Message(nil), messages...),
		Config:   rc,
	}
	out, err := compiled.Run(ctx, initial, workflow.WithRunID(runID))
	if err != nil {
		return nil, err
	}

	final := out.State
	res := &Result{
		RunID:              out.RunID,
		State:              final,
		Answer:             final.Answer(),
		Sources:            final.SourcesGathered,
		BranchFailures:     out.BranchFailures,
		LoopCeilingReached: !final.IsSufficient && final.LoopCount >= rc.MaxResearchLoops,
		Steps:              out.Steps,
		Waves:              out.Waves,
		History:            out.History,
	}
	logger.Info("research completed",
		zap.Int("loops", final.LoopCount),
		zap.Int("sources", len(res.Sources)),
		zap.Int("failed_searches", len(res.BranchFailures)),
		zap.Bool("loop_ceiling_reached", res.LoopCeilingReached),
	)
	return res, nil
}

func (a *Agent) compileOptions(rc RunConfig) []workflow.Option {
	// generate_query, one wave and one reflection per loop, finalize_answer.
	steps := max(a.maxSteps, 2*rc.MaxResearchLoops+2)
	opts := []workflow.Option{
		workflow.WithBranchPolicy(a.policy),
		workflow.WithMaxConcurrency(a.maxConcurrency),
		workflow.WithMaxSteps(steps),
	}
	if a.tracer != nil {
		opts = append(opts, workflow.WithTracer(a.tracer))
	}
	return opts
}
