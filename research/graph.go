package research

import (
	"time"

	"github.com/BaSui01/researchflow/workflow"
	"go.uber.org/zap"
)

// GraphName identifies the research graph in logs, spans and metrics.
const GraphName = "pro-search-agent"

// NewGraph wires the four research steps:
//
//	start -> generate_query -(fan-out)-> web_research -> reflection
//	reflection -(fan-out)-> web_research | reflection -> finalize_answer -> end
//
// A nil logger discards logs and a nil clock uses time.Now.
func NewGraph(gen Generator, searcher Searcher, logger *zap.Logger, clock Clock) *workflow.Graph[State, Update] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	s := &steps{
		gen:      gen,
		searcher: searcher,
		clock:    clock,
		logger:   logger.With(zap.String("component", "research")),
	}

	return workflow.NewGraph[State, Update](GraphName, Reduce).
		WithLogger(logger).
		AddNode(NodeGenerateQuery, s.generateQuery).
		AddBranchNode(NodeWebResearch, s.webResearch).
		AddNode(NodeReflection, s.reflection).
		AddNode(NodeFinalizeAnswer, s.finalizeAnswer).
		AddEdge(workflow.Start, NodeGenerateQuery).
		AddConditionalEdges(NodeGenerateQuery, ContinueToWebResearch, NodeWebResearch).
		AddEdge(NodeWebResearch, NodeReflection).
		AddConditionalEdges(NodeReflection, EvaluateResearch, NodeWebResearch, NodeFinalizeAnswer).
		AddEdge(NodeFinalizeAnswer, workflow.End)
}

// Mermaid renders the research graph topology.
func Mermaid() string {
	return NewGraph(nil, nil, nil, nil).Mermaid()
}
