package workflow

import (
	"context"
	"sync"
	"time"
)

// StreamEventType defines the type of workflow stream event.
type StreamEventType string

const (
	// EventRunStart is emitted once before the entry node runs.
	EventRunStart StreamEventType = "run_start"
	// EventRunComplete is emitted when the run reaches the end node.
	EventRunComplete StreamEventType = "run_complete"
	// EventRunError is emitted when the run fails.
	EventRunError StreamEventType = "run_error"
	// EventNodeStart is emitted before a node (or one branch of it) begins.
	EventNodeStart StreamEventType = "node_start"
	// EventNodeComplete is emitted after a node (or one branch of it) succeeds.
	EventNodeComplete StreamEventType = "node_complete"
	// EventNodeError is emitted when a sequential node fails.
	EventNodeError StreamEventType = "node_error"
	// EventBranchError is emitted when one fan-out branch fails.
	EventBranchError StreamEventType = "branch_error"
	// EventWaveStart is emitted when a fan-out is dispatched.
	EventWaveStart StreamEventType = "wave_start"
	// EventWaveComplete is emitted after the join barrier, once the
	// surviving branch updates were merged.
	EventWaveComplete StreamEventType = "wave_complete"
	// EventRoute is emitted for every routing decision.
	EventRoute StreamEventType = "route"
)

// StreamEvent carries information about a workflow execution event.
// Branch is -1 for events that do not belong to a fan-out branch.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	RunID    string          `json:"run_id"`
	Node     string          `json:"node,omitempty"`
	Wave     int             `json:"wave,omitempty"`
	Branch   int             `json:"branch"`
	Label    string          `json:"label,omitempty"`
	Route    string          `json:"route,omitempty"`
	Count    int             `json:"count,omitempty"`
	Duration time.Duration   `json:"duration,omitempty"`
	Error    error           `json:"-"`
}

// StreamEmitter is a callback that receives workflow stream events.
// Calls are serialized per run, so the emitter does not need its own lock.
type StreamEmitter func(StreamEvent)

type streamEmitterKey struct{}

// WithStreamEmitter stores a StreamEmitter in the context.
func WithStreamEmitter(ctx context.Context, emitter StreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, streamEmitterKey{}, emitter)
}

// streamEmitterFromContext retrieves the StreamEmitter from context.
func streamEmitterFromContext(ctx context.Context) (StreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	emit, ok := ctx.Value(streamEmitterKey{}).(StreamEmitter)
	return emit, ok && emit != nil
}

// MultiEmitter fans one event out to several emitters in order.
func MultiEmitter(emitters ...StreamEmitter) StreamEmitter {
	return func(ev StreamEvent) {
		for _, e := range emitters {
			if e != nil {
				e(ev)
			}
		}
	}
}

// runEmitter stamps the run id on every event and serializes delivery,
// since branches emit from their own goroutines.
type runEmitter struct {
	runID string
	mu    sync.Mutex
	emit  StreamEmitter
}

func newRunEmitter(ctx context.Context, runID string) *runEmitter {
	emit, _ := streamEmitterFromContext(ctx)
	return &runEmitter{runID: runID, emit: emit}
}

func (r *runEmitter) send(ev StreamEvent) {
	if r == nil || r.emit == nil {
		return
	}
	ev.RunID = r.runID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(ev)
}
