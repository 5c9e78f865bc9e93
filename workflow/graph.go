package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// Start is the virtual source node. AddEdge(Start, x) sets the entry point.
	Start = "__start__"
	// End is the virtual sink node.
	End = "__end__"
)

// NodeFunc is one unit of work. It receives the state (or, for a fan-out
// branch, the branch's isolated input) and returns only the fields it
// changed as an update. Nodes never mutate shared state themselves.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// StateReducer folds a node update into the run state.
type StateReducer[S, U any] func(state S, update U) S

type edgeKind int

const (
	edgeNone edgeKind = iota
	edgeStatic
	edgeConditional
)

type edge[S any] struct {
	kind    edgeKind
	to      string
	router  RouterFunc[S]
	targets map[string]bool
}

// Graph describes the static topology: nodes, fixed edges and conditional
// edges. It is built once and compiled into a CompiledGraph.
type Graph[S, U any] struct {
	name    string
	nodes   map[string]NodeFunc[S, U]
	order    []string
	edges    map[string]edge[S]
	branches map[string]bool
	entry    string
	reducer  StateReducer[S, U]
	logger   *zap.Logger
	errs     []error
}

// NewGraph creates an empty graph whose node updates are merged with reducer.
func NewGraph[S, U any](name string, reducer StateReducer[S, U]) *Graph[S, U] {
	return &Graph[S, U]{
		name:    name,
		nodes:    make(map[string]NodeFunc[S, U]),
		edges:    make(map[string]edge[S]),
		branches: make(map[string]bool),
		reducer:  reducer,
		logger:   zap.NewNop(),
	}
}

// WithLogger sets a custom logger
func (g *Graph[S, U]) WithLogger(logger *zap.Logger) *Graph[S, U] {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Name returns the graph name.
func (g *Graph[S, U]) Name() string { return g.name }

// AddNode registers a node.
func (g *Graph[S, U]) AddNode(name string, fn NodeFunc[S, U]) *Graph[S, U] {
	switch {
	case name == "" || name == Start || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s has no function", name))
	default:
		if _, dup := g.nodes[name]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %s", name))
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddBranchNode registers a node that routers may fan out to. Each branch
// runs it on its own input; the node's static edge names the join node the
// wave merges into before the run continues.
func (g *Graph[S, U]) AddBranchNode(name string, fn NodeFunc[S, U]) *Graph[S, U] {
	n := len(g.errs)
	g.AddNode(name, fn)
	if len(g.errs) == n {
		g.branches[name] = true
	}
	return g
}

// SetEntryPoint sets the first node to run.
func (g *Graph[S, U]) SetEntryPoint(name string) *Graph[S, U] {
	g.entry = name
	return g
}

// AddEdge adds a fixed edge. An edge from Start sets the entry point.
func (g *Graph[S, U]) AddEdge(from, to string) *Graph[S, U] {
	if from == Start {
		return g.SetEntryPoint(to)
	}
	if err := g.claimEdge(from); err != nil {
		g.errs = append(g.errs, err)
		return g
	}
	g.edges[from] = edge[S]{kind: edgeStatic, to: to}
	return g
}

// AddConditionalEdges attaches a router to from. targets declares every node
// the router may return; it is used for validation and rendering, and a
// router that strays outside it fails the run.
func (g *Graph[S, U]) AddConditionalEdges(from string, router RouterFunc[S], targets ...string) *Graph[S, U] {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %s has no router", from))
		return g
	}
	if len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %s declares no targets", from))
		return g
	}
	if err := g.claimEdge(from); err != nil {
		g.errs = append(g.errs, err)
		return g
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	g.edges[from] = edge[S]{kind: edgeConditional, router: router, targets: set}
	return g
}

func (g *Graph[S, U]) claimEdge(from string) error {
	if from == End {
		return errors.New("edges cannot leave the end node")
	}
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("node %s already has an outgoing edge", from)
	}
	return nil
}

// Compile validates the graph and returns an executable CompiledGraph.
func (g *Graph[S, U]) Compile(opts ...Option) (*CompiledGraph[S, U], error) {
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("graph %s validation failed: %w", g.name, err)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = g.logger
	}

	nodes := make(map[string]NodeFunc[S, U], len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	edges := make(map[string]edge[S], len(g.edges))
	for k, v := range g.edges {
		edges[k] = v
	}
	branches := make(map[string]bool, len(g.branches))
	for k := range g.branches {
		branches[k] = true
	}

	options.logger.Debug("graph compiled",
		zap.String("graph", g.name),
		zap.Int("nodes", len(nodes)),
		zap.String("entry", g.entry),
	)

	return &CompiledGraph[S, U]{
		name:     g.name,
		nodes:    nodes,
		order:    append([]string(nil), g.order...),
		edges:    edges,
		branches: branches,
		entry:    g.entry,
		reducer:  g.reducer,
		opts:     options,
		logger:   options.logger.With(zap.String("component", "workflow"), zap.String("graph", g.name)),
	}, nil
}

// validate performs comprehensive validation of the graph
func (g *Graph[S, U]) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.reducer == nil {
		errs = append(errs, errors.New("graph has no state reducer"))
	}
	if len(g.nodes) == 0 {
		errs = append(errs, errors.New("graph has no nodes"))
	}
	if g.entry == "" {
		errs = append(errs, errors.New("entry node not set"))
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node does not exist: %s", g.entry))
	}

	for _, name := range g.order {
		e, ok := g.edges[name]
		if !ok {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
			continue
		}
		for _, to := range e.successors() {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("edge %s -> %s references non-existent node", name, to))
			}
		}
	}
	for _, name := range g.order {
		if !g.branches[name] {
			continue
		}
		if e, ok := g.edges[name]; ok && e.kind != edgeStatic {
			errs = append(errs, fmt.Errorf("%w: %s needs a static edge to its join node", ErrNoJoinNode, name))
		}
	}
	for from := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge references non-existent source node: %s", from))
		}
	}

	if len(errs) == 0 {
		if orphaned := g.orphans(); len(orphaned) > 0 {
			errs = append(errs, fmt.Errorf("orphaned nodes detected (not reachable from entry): %v", orphaned))
		}
	}
	return errors.Join(errs...)
}

// orphans lists nodes not reachable from the entry node.
func (g *Graph[S, U]) orphans() []string {
	reachable := make(map[string]bool)
	var mark func(string)
	mark = func(id string) {
		if id == End || reachable[id] {
			return
		}
		reachable[id] = true
		for _, next := range g.edges[id].successors() {
			mark(next)
		}
	}
	mark(g.entry)

	var orphaned []string
	for _, name := range g.order {
		if !reachable[name] {
			orphaned = append(orphaned, name)
		}
	}
	return orphaned
}

func (e edge[S]) successors() []string {
	switch e.kind {
	case edgeStatic:
		return []string{e.to}
	case edgeConditional:
		out := make([]string, 0, len(e.targets))
		for t := range e.targets {
			out = append(out, t)
		}
		sort.Strings(out)
		return out
	default:
		return nil
	}
}

// Mermaid renders the topology as a Mermaid flowchart. Conditional edges
// are dotted.
func (g *Graph[S, U]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(fmt.Sprintf("    %s((start))\n", mermaidID(Start)))
	for _, name := range g.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(name), name))
	}
	sb.WriteString(fmt.Sprintf("    %s((end))\n", mermaidID(End)))

	if g.entry != "" {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(Start), mermaidID(g.entry)))
	}
	for _, name := range g.order {
		e, ok := g.edges[name]
		if !ok {
			continue
		}
		arrow := "-->"
		if e.kind == edgeConditional {
			arrow = "-.->"
		}
		for _, to := range e.successors() {
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", mermaidID(name), arrow, mermaidID(to)))
		}
	}
	return sb.String()
}

func mermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", " ", "_")
	return strings.Trim(r.Replace(id), "_")
}
