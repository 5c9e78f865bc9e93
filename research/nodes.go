package research

import (
	"context"
	"strings"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/workflow"
	"go.uber.org/zap"
)

// Node names.
const (
	NodeGenerateQuery  = "generate_query"
	NodeWebResearch    = "web_research"
	NodeReflection     = "reflection"
	NodeFinalizeAnswer = "finalize_answer"
)

// steps holds the node implementations and their dependencies.
type steps struct {
	gen      Generator
	searcher Searcher
	clock    Clock
	logger   *zap.Logger
}

// generateQuery asks the query model for up to NumberOfInitialQueries
// queries and replaces QueryList with them. An empty list is kept as is.
func (s *steps) generateQuery(ctx context.Context, st State) (Update, error) {
	model := st.Config.QueryGeneratorModel
	prompt, err := QueryWriterPrompt(ResearchTopic(st.Messages), st.Config.NumberOfInitialQueries, s.clock())
	if err != nil {
		return Update{}, err
	}

	var plan QueryPlan
	if err := s.gen.GenerateStructured(ctx, model, prompt, &plan); err != nil {
		return Update{}, &ProviderError{Op: OpGenerateStructured, Model: model, Err: err}
	}

	queries := make([]string, 0, len(plan.Query))
	for _, q := range plan.Query {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	s.logger.Info("queries generated",
		zap.Int("requested", st.Config.NumberOfInitialQueries),
		zap.Strings("queries", queries),
	)
	return Update{QueryList: workflow.Set(queries)}, nil
}

// webResearch runs one search. It receives an isolated branch state and
// returns one formatted block plus the raw results.
func (s *steps) webResearch(ctx context.Context, st State) (Update, error) {
	results, err := s.searcher.Search(ctx, st.SearchQuery)
	if err != nil {
		return Update{}, &ProviderError{Op: OpSearch, Query: st.SearchQuery, Err: err}
	}
	s.logger.Debug("search completed", zap.String("query", st.SearchQuery), zap.Int("results", len(results)))

	return Update{
		WebResults:      []string{FormatResults(results)},
		SourcesGathered: append([]Source(nil), results...),
		SearchQueries:   []string{st.SearchQuery},
	}, nil
}

// reflection increments the loop counter and asks the reflection model
// whether the gathered summaries are enough. When another wave follows,
// the follow-up queries become the live QueryList.
func (s *steps) reflection(ctx context.Context, st State) (Update, error) {
	loop := st.LoopCount + 1
	model := st.Config.ReflectionModel
	summaries := strings.Join(st.WebResults, reflectionSeparator)

	prompt, err := ReflectionPrompt(ResearchTopic(st.Messages), summaries, s.clock())
	if err != nil {
		return Update{}, err
	}

	var res ReflectionResult
	if err := s.gen.GenerateStructured(ctx, model, prompt, &res); err != nil {
		return Update{}, &ProviderError{Op: OpGenerateStructured, Model: model, Err: err}
	}
	followUps := res.FollowUpQueries
	if followUps == nil {
		followUps = []string{}
	}

	s.logger.Info("reflection completed",
		zap.Int("loop", loop),
		zap.Int("summaries", len(st.WebResults)),
		zap.Bool("sufficient", res.IsSufficient),
		zap.Int("follow_ups", len(followUps)),
	)
	u := Update{
		LoopCount:       workflow.Set(loop),
		IsSufficient:    workflow.Set(res.IsSufficient),
		KnowledgeGap:    workflow.Set(res.KnowledgeGap),
		FollowUpQueries: workflow.Set(followUps),
	}
	// 还会再扇出一轮时，QueryList 换成这一轮的查询
	if !res.IsSufficient && loop < st.Config.MaxResearchLoops {
		u.QueryList = workflow.Set(followUps)
	}
	return u, nil
}

// finalizeAnswer writes the cited answer and appends it to the conversation.
func (s *steps) finalizeAnswer(ctx context.Context, st State) (Update, error) {
	model := st.Config.AnswerModel
	prompt, err := AnswerPrompt(
		ResearchTopic(st.Messages),
		strings.Join(st.WebResults, answerSeparator),
		CitationList(st.SourcesGathered),
		s.clock(),
	)
	if err != nil {
		return Update{}, err
	}

	answer, err := s.gen.GenerateText(ctx, model, prompt)
	if err != nil {
		return Update{}, &ProviderError{Op: OpGenerateText, Model: model, Err: err}
	}
	s.logger.Info("answer generated", zap.Int("sources", len(st.SourcesGathered)), zap.Int("length", len(answer)))

	return Update{Messages: []Message{{Role: llm.RoleAssistant, Content: answer}}}, nil
}

// ContinueToWebResearch fans web_research out over QueryList, in list order.
func ContinueToWebResearch(st State) workflow.Route[State] {
	return workflow.FanOut(NodeWebResearch, branches(st, st.QueryList))
}

// EvaluateResearch ends the loop when the summaries are sufficient or the
// loop counter reached MaxResearchLoops, and otherwise fans web_research out
// over FollowUpQueries.
func EvaluateResearch(st State) workflow.Route[State] {
	if st.IsSufficient || st.LoopCount >= st.Config.MaxResearchLoops {
		return workflow.Goto[State](NodeFinalizeAnswer)
	}
	return workflow.FanOut(NodeWebResearch, branches(st, st.FollowUpQueries))
}

// branches builds one isolated input per query. A branch sees only its
// query and the run config.
func branches(st State, queries []string) []workflow.Send[State] {
	sends := make([]workflow.Send[State], len(queries))
	for i, q := range queries {
		sends[i] = workflow.NewSend(q, State{SearchQuery: q, Config: st.Config})
	}
	return sends
}
