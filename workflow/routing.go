package workflow

import "fmt"

// RouteKind tags the variant held by a Route.
type RouteKind int

const (
	// RouteEnd terminates the run.
	RouteEnd RouteKind = iota
	// RouteGoto continues with a single node.
	RouteGoto
	// RouteFanOut spawns one branch of a node per Send and joins them
	// before continuing with the node's static successor.
	RouteFanOut
)

func (k RouteKind) String() string {
	switch k {
	case RouteEnd:
		return "end"
	case RouteGoto:
		return "goto"
	case RouteFanOut:
		return "fan_out"
	default:
		return fmt.Sprintf("route(%d)", int(k))
	}
}

// Send is the isolated input of one fan-out branch. Label identifies the
// branch in logs and errors (the search query, for instance).
type Send[S any] struct {
	Label string
	State S
}

// NewSend creates a branch input.
func NewSend[S any](label string, state S) Send[S] {
	return Send[S]{Label: label, State: state}
}

// Route is the decision returned by a RouterFunc.
type Route[S any] struct {
	Kind  RouteKind
	Node  string
	Sends []Send[S]
}

// Goto routes to a single node. Goto(End) is equivalent to Finish.
func Goto[S any](node string) Route[S] {
	if node == End {
		return Finish[S]()
	}
	return Route[S]{Kind: RouteGoto, Node: node}
}

// FanOut dispatches node once per send. An empty list is a valid wave of
// size zero: no branch runs and control passes to the join node directly.
func FanOut[S any](node string, sends []Send[S]) Route[S] {
	return Route[S]{Kind: RouteFanOut, Node: node, Sends: sends}
}

// Finish terminates the run.
func Finish[S any]() Route[S] {
	return Route[S]{Kind: RouteEnd}
}

// String renders the decision for logs and stream events.
func (r Route[S]) String() string {
	switch r.Kind {
	case RouteGoto:
		return "goto " + r.Node
	case RouteFanOut:
		return fmt.Sprintf("fan_out %s x%d", r.Node, len(r.Sends))
	default:
		return "end"
	}
}

// RouterFunc inspects the state after a node and decides what runs next.
// Routers must be pure: the same state always yields the same route.
type RouterFunc[S any] func(state S) Route[S]
