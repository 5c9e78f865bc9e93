package workflow

import (
	"sync"
	"time"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// NodeExecution records the execution of a single node or fan-out branch.
// Branch is -1 for sequential nodes.
type NodeExecution struct {
	Node      string          `json:"node"`
	Step      int             `json:"step"`
	Wave      int             `json:"wave,omitempty"`
	Branch    int             `json:"branch"`
	Label     string          `json:"label,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory records the complete execution path of a run.
type ExecutionHistory struct {
	RunID     string           `json:"run_id"`
	Graph     string           `json:"graph"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Status    ExecutionStatus  `json:"status"`
	Nodes     []*NodeExecution `json:"nodes"`
	Error     string           `json:"error,omitempty"`
	mu        sync.RWMutex
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(runID, graph string) *ExecutionHistory {
	return &ExecutionHistory{
		RunID:     runID,
		Graph:     graph,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
		Nodes:     make([]*NodeExecution, 0),
	}
}

// RecordNodeStart records the start of a node execution
func (h *ExecutionHistory) RecordNodeStart(node string, step, wave, branch int, label string) *NodeExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &NodeExecution{
		Node:      node,
		Step:      step,
		Wave:      wave,
		Branch:    branch,
		Label:     label,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	h.Nodes = append(h.Nodes, rec)
	return rec
}

// RecordNodeEnd records the end of a node execution
func (h *ExecutionHistory) RecordNodeEnd(rec *NodeExecution, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)

	if err != nil {
		rec.Status = ExecutionStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = ExecutionStatusCompleted
	}
}

// Complete marks the execution as completed
func (h *ExecutionHistory) Complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)

	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
	} else {
		h.Status = ExecutionStatusCompleted
	}
}

// GetNodes returns a copy of the node executions
func (h *ExecutionHistory) GetNodes() []*NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	nodes := make([]*NodeExecution, len(h.Nodes))
	copy(nodes, h.Nodes)
	return nodes
}

// NodesNamed returns the executions of one node in start order.
func (h *ExecutionHistory) NodesNamed(node string) []*NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*NodeExecution
	for _, n := range h.Nodes {
		if n.Node == node {
			out = append(out, n)
		}
	}
	return out
}
