package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/BaSui01/researchflow/workflow"

// DefaultMaxSteps bounds the number of node executions and waves in one run.
const DefaultMaxSteps = 25

type options struct {
	policy         BranchPolicy
	maxConcurrency int
	maxSteps       int
	logger         *zap.Logger
	tracer         trace.Tracer
}

func defaultOptions() options {
	return options{
		policy:   BranchPolicyLenient,
		maxSteps: DefaultMaxSteps,
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Option configures a CompiledGraph.
type Option func(*options)

// WithBranchPolicy selects how a wave handles failed branches.
func WithBranchPolicy(p BranchPolicy) Option {
	return func(o *options) {
		if p != "" {
			o.policy = p
		}
	}
}

// WithMaxConcurrency bounds the number of branches of one wave running at
// once. Zero or a negative value means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

// WithMaxSteps overrides DefaultMaxSteps. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for run, node and branch spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// CompiledGraph is an immutable, validated graph ready to run. One
// CompiledGraph may serve any number of concurrent runs.
type CompiledGraph[S, U any] struct {
	name     string
	nodes    map[string]NodeFunc[S, U]
	order    []string
	edges    map[string]edge[S]
	branches map[string]bool
	entry    string
	reducer  StateReducer[S, U]
	opts     options
	logger   *zap.Logger
}

// Result is the outcome of a successful run.
type Result[S any] struct {
	RunID string
	State S
	// Steps counts node executions plus waves.
	Steps int
	// Waves counts fan-outs, including empty ones.
	Waves int
	// BranchFailures lists branches dropped under the lenient policy,
	// in wave then dispatch order.
	BranchFailures []*BranchError
	History        *ExecutionHistory
}

// Name returns the graph name.
func (c *CompiledGraph[S, U]) Name() string { return c.name }

// Nodes returns the node names in insertion order.
func (c *CompiledGraph[S, U]) Nodes() []string { return append([]string(nil), c.order...) }

// BranchPolicy returns the policy applied to waves.
func (c *CompiledGraph[S, U]) BranchPolicy() BranchPolicy { return c.opts.policy }

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID string
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

type run[S, U any] struct {
	g        *CompiledGraph[S, U]
	id       string
	logger   *zap.Logger
	history  *ExecutionHistory
	events   *runEmitter
	steps    int
	waves    int
	failures []*BranchError
}

// Run executes the graph from the entry node until a route reaches End.
//
// Sequential nodes run one at a time and their update is reduced into the
// state before the node's edge is resolved. A fan-out route runs one branch
// per Send concurrently; no branch update is merged until all of them have
// finished, and the merge then happens in dispatch order, so the resulting
// state does not depend on completion order. Control then moves to the
// fan-out target's fixed successor.
//
// Any error, including cancellation of ctx, is returned as a *RunError and
// no partial result is returned.
func (c *CompiledGraph[S, U]) Run(ctx context.Context, initial S, opts ...RunOption) (*Result[S], error) {
	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.NewString()
	}

	r := &run[S, U]{
		g:       c,
		id:      ro.runID,
		logger:  c.logger.With(zap.String("run_id", ro.runID)),
		history: NewExecutionHistory(ro.runID, c.name),
		events:  newRunEmitter(ctx, ro.runID),
	}

	ctx, span := c.opts.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.graph", c.name),
			attribute.String("workflow.run_id", r.id),
			attribute.String("workflow.branch_policy", string(c.opts.policy)),
		))
	defer span.End()

	r.logger.Info("run started", zap.String("entry", c.entry))
	r.events.send(StreamEvent{Type: EventRunStart, Node: c.entry, Branch: -1})

	state, err := r.loop(ctx, initial)
	r.history.Complete(err)
	span.SetAttributes(
		attribute.Int("workflow.steps", r.steps),
		attribute.Int("workflow.waves", r.waves),
		attribute.Int("workflow.branch_failures", len(r.failures)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("run failed", zap.Int("steps", r.steps), zap.Error(err))
		r.events.send(StreamEvent{Type: EventRunError, Branch: -1, Error: err})
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info("run completed",
		zap.Int("steps", r.steps),
		zap.Int("waves", r.waves),
		zap.Int("branch_failures", len(r.failures)),
		zap.Duration("duration", r.history.Duration),
	)
	r.events.send(StreamEvent{Type: EventRunComplete, Branch: -1, Count: r.steps, Duration: r.history.Duration})

	return &Result[S]{
		RunID:          r.id,
		State:          state,
		Steps:          r.steps,
		Waves:          r.waves,
		BranchFailures: r.failures,
		History:        r.history,
	}, nil
}

func (r *run[S, U]) loop(ctx context.Context, state S) (S, error) {
	current := r.g.entry
	for {
		if err := r.step(ctx, current); err != nil {
			return state, err
		}

		update, err := r.runNode(ctx, current, state)
		if err != nil {
			return state, r.fail(current, err)
		}
		state = r.g.reducer(state, update)

		route, err := r.resolve(current, state)
		if err != nil {
			return state, r.fail(current, err)
		}
		r.logger.Debug("route resolved", zap.String("from", current), zap.Stringer("route", route))
		r.events.send(StreamEvent{Type: EventRoute, Node: current, Branch: -1, Route: route.String(), Count: len(route.Sends)})

		switch route.Kind {
		case RouteEnd:
			return state, nil
		case RouteGoto:
			current = route.Node
			continue
		}

		// Compile 已保证分支节点有静态边
		if !r.g.branches[route.Node] {
			return state, r.fail(current, fmt.Errorf("%w: %s is not a branch node", ErrNoJoinNode, route.Node))
		}
		join := r.g.edges[route.Node]
		if err := r.step(ctx, route.Node); err != nil {
			return state, err
		}
		updates, err := r.runWave(ctx, route)
		if err != nil {
			return state, r.fail(route.Node, err)
		}
		for _, u := range updates {
			state = r.g.reducer(state, u)
		}
		r.events.send(StreamEvent{Type: EventWaveComplete, Node: route.Node, Wave: r.waves, Branch: -1, Count: len(updates)})

		if join.to == End {
			return state, nil
		}
		current = join.to
	}
}

// step accounts for one unit of work and checks the run-level guards.
func (r *run[S, U]) step(ctx context.Context, node string) error {
	if err := ctx.Err(); err != nil {
		return r.fail(node, err)
	}
	r.steps++
	if r.steps > r.g.opts.maxSteps {
		return r.fail(node, fmt.Errorf("%w: limit %d", ErrStepLimitExceeded, r.g.opts.maxSteps))
	}
	return nil
}

func (r *run[S, U]) fail(node string, err error) error {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return &RunError{RunID: r.id, Node: node, Err: err}
}

// resolve turns the node's outgoing edge into a validated route.
func (r *run[S, U]) resolve(from string, state S) (Route[S], error) {
	e := r.g.edges[from]
	switch e.kind {
	case edgeStatic:
		return Goto[S](e.to), nil
	case edgeConditional:
		route := e.router(state)
		if route.Kind == RouteEnd {
			if !e.targets[End] {
				return route, fmt.Errorf("%w: %s -> %s", ErrUndeclaredTarget, from, End)
			}
			return route, nil
		}
		if !e.targets[route.Node] {
			return route, fmt.Errorf("%w: %s -> %s", ErrUndeclaredTarget, from, route.Node)
		}
		if _, ok := r.g.nodes[route.Node]; !ok {
			return route, fmt.Errorf("%w: %s", ErrUnknownNode, route.Node)
		}
		return route, nil
	default:
		return Route[S]{}, fmt.Errorf("%w: %s has no outgoing edge", ErrUnknownNode, from)
	}
}

func (r *run[S, U]) runNode(ctx context.Context, node string, state S) (U, error) {
	ctx, span := r.g.opts.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.node", node),
			attribute.Int("workflow.step", r.steps),
		))
	defer span.End()

	rec := r.history.RecordNodeStart(node, r.steps, 0, -1, "")
	r.events.send(StreamEvent{Type: EventNodeStart, Node: node, Branch: -1})
	start := time.Now()

	update, err := invoke(ctx, r.g.nodes[node], state)
	r.history.RecordNodeEnd(rec, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("node failed", zap.String("node", node), zap.Error(err))
		r.events.send(StreamEvent{Type: EventNodeError, Node: node, Branch: -1, Duration: time.Since(start), Error: err})
		return update, err
	}

	r.logger.Debug("node completed", zap.String("node", node), zap.Duration("duration", time.Since(start)))
	r.events.send(StreamEvent{Type: EventNodeComplete, Node: node, Branch: -1, Duration: time.Since(start)})
	return update, nil
}

// runWave runs every branch of a fan-out and returns the surviving updates
// in dispatch order.
func (r *run[S, U]) runWave(ctx context.Context, route Route[S]) ([]U, error) {
	r.waves++
	wave := r.waves
	n := len(route.Sends)

	ctx, span := r.g.opts.tracer.Start(ctx, "workflow.wave",
		trace.WithAttributes(
			attribute.String("workflow.node", route.Node),
			attribute.Int("workflow.wave", wave),
			attribute.Int("workflow.branches", n),
		))
	defer span.End()

	r.logger.Debug("wave dispatched", zap.String("node", route.Node), zap.Int("wave", wave), zap.Int("branches", n))
	r.events.send(StreamEvent{Type: EventWaveStart, Node: route.Node, Wave: wave, Branch: -1, Count: n})
	if n == 0 {
		return nil, nil
	}

	strict := r.g.opts.policy == BranchPolicyStrict
	// Lenient branches report failures through errs and never cancel
	// their siblings.
	g, gctx := new(errgroup.Group), ctx
	if strict {
		g, gctx = errgroup.WithContext(ctx)
	}
	if r.g.opts.maxConcurrency > 0 {
		g.SetLimit(r.g.opts.maxConcurrency)
	}

	fn := r.g.nodes[route.Node]
	updates := make([]U, n)
	errs := make([]*BranchError, n)
	for i, send := range route.Sends {
		g.Go(func() error {
			u, err := r.runBranch(gctx, fn, route.Node, wave, i, send)
			if err != nil {
				be := &BranchError{Node: route.Node, Wave: wave, Index: i, Label: send.Label, Err: err}
				errs[i] = be
				if strict {
					return be
				}
				return nil
			}
			updates[i] = u
			return nil
		})
	}
	waitErr := g.Wait()

	// Cancellation of the run itself always wins over branch outcomes.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		span.RecordError(waitErr)
		span.SetStatus(codes.Error, waitErr.Error())
		return nil, waitErr
	}

	merged := make([]U, 0, n)
	for i := range route.Sends {
		if errs[i] != nil {
			r.failures = append(r.failures, errs[i])
			continue
		}
		merged = append(merged, updates[i])
	}
	if dropped := n - len(merged); dropped > 0 {
		r.logger.Warn("wave completed with failed branches",
			zap.String("node", route.Node),
			zap.Int("wave", wave),
			zap.Int("failed", dropped),
			zap.Int("merged", len(merged)),
		)
	}
	span.SetAttributes(attribute.Int("workflow.branches_failed", n-len(merged)))
	return merged, nil
}

func (r *run[S, U]) runBranch(ctx context.Context, fn NodeFunc[S, U], node string, wave, index int, send Send[S]) (U, error) {
	ctx, span := r.g.opts.tracer.Start(ctx, "workflow.branch",
		trace.WithAttributes(
			attribute.String("workflow.node", node),
			attribute.Int("workflow.wave", wave),
			attribute.Int("workflow.branch", index),
			attribute.String("workflow.label", send.Label),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		var zero U
		return zero, err
	}

	rec := r.history.RecordNodeStart(node, r.steps, wave, index, send.Label)
	r.events.send(StreamEvent{Type: EventNodeStart, Node: node, Wave: wave, Branch: index, Label: send.Label})
	start := time.Now()

	update, err := invoke(ctx, fn, send.State)
	r.history.RecordNodeEnd(rec, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("branch failed",
			zap.String("node", node),
			zap.Int("wave", wave),
			zap.Int("branch", index),
			zap.String("label", send.Label),
			zap.Error(err),
		)
		r.events.send(StreamEvent{Type: EventBranchError, Node: node, Wave: wave, Branch: index, Label: send.Label, Duration: time.Since(start), Error: err})
		return update, err
	}

	r.events.send(StreamEvent{Type: EventNodeComplete, Node: node, Wave: wave, Branch: index, Label: send.Label, Duration: time.Since(start)})
	return update, nil
}

// invoke calls fn and turns a panic into an error.
func invoke[S, U any](ctx context.Context, fn NodeFunc[S, U], state S) (update U, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("node panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx, state)
}
