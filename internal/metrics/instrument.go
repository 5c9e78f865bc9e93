package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/search"
	"github.com/BaSui01/researchflow/workflow"
)

// =============================================================================
// 🔀 工作流事件 -> 指标
// =============================================================================

// StreamEmitter returns a workflow.StreamEmitter that records run, node,
// wave and branch metrics for graph. It is safe to share across runs.
func (c *Collector) StreamEmitter(graph string) workflow.StreamEmitter {
	var (
		mu     sync.Mutex
		starts = make(map[string]time.Time)
	)
	return func(ev workflow.StreamEvent) {
		switch ev.Type {
		case workflow.EventRunStart:
			mu.Lock()
			starts[ev.RunID] = time.Now()
			mu.Unlock()
		case workflow.EventRunComplete, workflow.EventRunError:
			mu.Lock()
			start, ok := starts[ev.RunID]
			delete(starts, ev.RunID)
			mu.Unlock()
			var d time.Duration
			if ok {
				d = time.Since(start)
			}
			c.RecordRun(graph, statusOf(ev.Error), d)
		case workflow.EventNodeComplete:
			c.RecordNode(graph, ev.Node, StatusSuccess, ev.Duration)
		case workflow.EventNodeError:
			c.RecordNode(graph, ev.Node, StatusError, ev.Duration)
		case workflow.EventBranchError:
			c.RecordNode(graph, ev.Node, StatusError, ev.Duration)
			c.RecordBranchFailure(graph, ev.Node)
		case workflow.EventWaveStart:
			c.RecordWave(graph, ev.Node, ev.Count)
		}
	}
}

// =============================================================================
// 🤖 LLM Provider 包装
// =============================================================================

type instrumentedProvider struct {
	llm.Provider
	c *Collector
}

// InstrumentProvider records request count, latency and token usage for
// every completion made through p.
func (c *Collector) InstrumentProvider(p llm.Provider) llm.Provider {
	return &instrumentedProvider{Provider: p, c: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)

	model := ""
	if req != nil {
		model = req.Model
	}
	var prompt, completion int
	if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	p.c.RecordLLMRequest(p.Name(), model, statusOf(err), time.Since(start), prompt, completion)
	return resp, err
}

// =============================================================================
// 🔍 搜索 Provider 包装
// =============================================================================

type instrumentedSearch struct {
	search.Provider
	c *Collector
}

// InstrumentSearch records request count, latency and result count for
// every query made through p. It has the search.Chain middleware shape.
func (c *Collector) InstrumentSearch(p search.Provider) search.Provider {
	return &instrumentedSearch{Provider: p, c: c}
}

func (s *instrumentedSearch) Search(ctx context.Context, query string) ([]search.Result, error) {
	start := time.Now()
	results, err := s.Provider.Search(ctx, query)
	s.c.RecordSearch(s.Name(), statusOf(err), time.Since(start), len(results))
	return results, err
}
