package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStepLimitExceeded is returned when a run executes more steps than
	// the compiled graph allows.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	// ErrUnknownNode is returned when a route targets a node that was never added.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUndeclaredTarget is returned when a router picks a node it did not
	// declare in AddConditionalEdges.
	ErrUndeclaredTarget = errors.New("undeclared route target")
	// ErrNoJoinNode is returned when a branch node has no fixed successor
	// to join on, or when a router fans out to a node that was not added
	// with AddBranchNode.
	ErrNoJoinNode = errors.New("fan-out target has no join node")
)

// BranchPolicy decides what a wave does when one of its branches fails.
type BranchPolicy string

const (
	// BranchPolicyLenient drops failed branches, records them in the result
	// and merges the remaining ones.
	BranchPolicyLenient BranchPolicy = "lenient"
	// BranchPolicyStrict cancels the wave on the first failure and fails the run.
	BranchPolicyStrict BranchPolicy = "strict"
)

// ParseBranchPolicy converts a config string into a BranchPolicy.
// An empty string selects the lenient policy.
func ParseBranchPolicy(s string) (BranchPolicy, error) {
	switch BranchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BranchPolicyLenient:
		return BranchPolicyLenient, nil
	case BranchPolicyStrict:
		return BranchPolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown branch policy %q (want lenient or strict)", s)
	}
}

// BranchError records a failed fan-out branch.
type BranchError struct {
	Node  string
	Wave  int
	Index int
	Label string
	Err   error
}

func (e *BranchError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("branch %d of %s (%q) failed: %v", e.Index, e.Node, e.Label, e.Err)
	}
	return fmt.Sprintf("branch %d of %s failed: %v", e.Index, e.Node, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// RunError is the error surfaced to callers of CompiledGraph.Run.
// Err is a *BranchError when a strict wave failed.
type RunError struct {
	RunID string
	Node  string
	Err   error
}

func (e *RunError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("run %s failed: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %s: node %s failed: %v", e.RunID, e.Node, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Branch returns the failed branch when the run was ended by a strict wave.
func (e *RunError) Branch() (*BranchError, bool) {
	var be *BranchError
	if errors.As(e.Err, &be) {
		return be, true
	}
	return nil, false
}
