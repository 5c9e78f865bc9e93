package research

import (
	"fmt"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/search"
	"github.com/BaSui01/researchflow/workflow"
	"github.com/mitchellh/mapstructure"
)

// Message is one conversation turn.
type Message = llm.Message

// Source is one raw search result kept for citation resolution.
type Source = search.Result

// RunConfig holds the per-run settings. It is fixed when a run starts and
// read by every node, including fan-out branches.
type RunConfig struct {
	NumberOfInitialQueries int    `mapstructure:"number_of_initial_queries" json:"number_of_initial_queries"`
	QueryGeneratorModel    string `mapstructure:"query_generator_model" json:"query_generator_model"`
	ReflectionModel        string `mapstructure:"reflection_model" json:"reflection_model"`
	AnswerModel            string `mapstructure:"answer_model" json:"answer_model"`
	MaxResearchLoops       int    `mapstructure:"max_research_loops" json:"max_research_loops"`
}

// RunConfigFromConfig extracts the run defaults from the loaded configuration.
func RunConfigFromConfig(c config.ResearchConfig) RunConfig {
	return RunConfig{
		NumberOfInitialQueries: c.NumberOfInitialQueries,
		QueryGeneratorModel:    c.QueryGeneratorModel,
		ReflectionModel:        c.ReflectionModel,
		AnswerModel:            c.AnswerModel,
		MaxResearchLoops:       c.MaxResearchLoops,
	}
}

// DefaultRunConfig returns the built-in run defaults.
func DefaultRunConfig() RunConfig {
	return RunConfigFromConfig(config.DefaultResearchConfig())
}

// Merge returns c with every non-zero field of overrides applied.
func (c RunConfig) Merge(overrides RunConfig) RunConfig {
	if overrides.NumberOfInitialQueries != 0 {
		c.NumberOfInitialQueries = overrides.NumberOfInitialQueries
	}
	if overrides.QueryGeneratorModel != "" {
		c.QueryGeneratorModel = overrides.QueryGeneratorModel
	}
	if overrides.ReflectionModel != "" {
		c.ReflectionModel = overrides.ReflectionModel
	}
	if overrides.AnswerModel != "" {
		c.AnswerModel = overrides.AnswerModel
	}
	if overrides.MaxResearchLoops != 0 {
		c.MaxResearchLoops = overrides.MaxResearchLoops
	}
	return c
}

// Validate reports every unusable field as a *config.ConfigurationError.
func (c RunConfig) Validate() error {
	errs := &config.ConfigurationError{}
	if c.NumberOfInitialQueries < 1 {
		errs.Addf("number_of_initial_queries must be at least 1, got %d", c.NumberOfInitialQueries)
	}
	if c.MaxResearchLoops < 1 {
		errs.Addf("max_research_loops must be at least 1, got %d", c.MaxResearchLoops)
	}
	if c.QueryGeneratorModel == "" {
		errs.Addf("query_generator_model is required")
	}
	if c.ReflectionModel == "" {
		errs.Addf("reflection_model is required")
	}
	if c.AnswerModel == "" {
		errs.Addf("answer_model is required")
	}
	return errs.ErrOrNil()
}

// runConfigAliases maps alternative override keys onto RunConfig keys.
var runConfigAliases = map[string]string{
	"initial_search_query_count": "number_of_initial_queries",
}

// RunConfigFromMap decodes loosely typed per-run overrides, such as a
// decoded JSON request body. Numbers may arrive as strings or floats;
// unknown keys are rejected.
func RunConfigFromMap(m map[string]any) (RunConfig, error) {
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		if alias, ok := runConfigAliases[k]; ok {
			k = alias
		}
		normalized[k] = v
	}

	var rc RunConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return RunConfig{}, err
	}
	if err := dec.Decode(normalized); err != nil {
		return RunConfig{}, &config.ConfigurationError{Problems: []string{fmt.Sprintf("run overrides: %v", err)}}
	}
	return rc, nil
}

// State is the run state threaded through the graph.
//
// Messages, WebResults, SourcesGathered and SearchQueries only grow.
// QueryList, LoopCount, IsSufficient, KnowledgeGap and FollowUpQueries are
// overwritten by the node that owns them. SearchQuery is set only on the
// isolated input of a web_research branch and is never merged.
type State struct {
	Messages        []Message
	QueryList       []string
	WebResults      []string
	SourcesGathered []Source
	SearchQueries   []string
	LoopCount       int
	IsSufficient    bool
	KnowledgeGap    string
	FollowUpQueries []string
	SearchQuery     string
	Config          RunConfig
}

// Answer returns the content of the last assistant message, or "" when the
// run has not produced one.
func (s State) Answer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Update is the delta a node returns. Slice fields are appended; Optional
// fields overwrite when set.
type Update struct {
	Messages        []Message
	QueryList       workflow.Optional[[]string]
	WebResults      []string
	SourcesGathered []Source
	SearchQueries   []string
	LoopCount       workflow.Optional[int]
	IsSufficient    workflow.Optional[bool]
	KnowledgeGap    workflow.Optional[string]
	FollowUpQueries workflow.Optional[[]string]
}

var (
	appendMessages = workflow.AppendReducer[Message]()
	appendStrings  = workflow.AppendReducer[string]()
	appendSources  = workflow.AppendReducer[Source]()
	maxLoopCount   = workflow.MaxReducer[int]()
)

// Reduce folds u into s. It is the graph's state reducer and the only place
// where the run state changes.
func Reduce(s State, u Update) State {
	s.Messages = appendMessages(s.Messages, u.Messages)
	s.QueryList = u.QueryList.Apply(s.QueryList, nil)
	s.WebResults = appendStrings(s.WebResults, u.WebResults)
	s.SourcesGathered = appendSources(s.SourcesGathered, u.SourcesGathered)
	s.SearchQueries = appendStrings(s.SearchQueries, u.SearchQueries)
	s.LoopCount = u.LoopCount.Apply(s.LoopCount, maxLoopCount)
	s.IsSufficient = u.IsSufficient.Apply(s.IsSufficient, nil)
	s.KnowledgeGap = u.KnowledgeGap.Apply(s.KnowledgeGap, nil)
	s.FollowUpQueries = u.FollowUpQueries.Apply(s.FollowUpQueries, nil)
	return s
}
