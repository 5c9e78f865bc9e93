package research

// QueryPlan is the structured reply of the query generation step.
type QueryPlan struct {
	Rationale string   `json:"rationale" jsonschema:"description=Short explanation of why these queries cover the question"`
	Query     []string `json:"query" jsonschema:"description=Web search queries to run"`
}

// ReflectionResult is the structured reply of the reflection step.
type ReflectionResult struct {
	IsSufficient    bool     `json:"is_sufficient" jsonschema:"description=True when the summaries are enough to answer the question"`
	KnowledgeGap    string   `json:"knowledge_gap" jsonschema:"description=What is still missing; empty when sufficient"`
	FollowUpQueries []string `json:"follow_up_queries" jsonschema:"description=Self-contained queries that close the gap; empty when sufficient"`
}
