package research

import (
	"context"
	"fmt"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/llm/structured"
)

// Generator is the model boundary of the research steps.
type Generator interface {
	// GenerateStructured fills target, a pointer to a struct, from a
	// schema-constrained completion.
	GenerateStructured(ctx context.Context, model, prompt string, target any) error
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// Searcher is the web search boundary. search.Provider satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Source, error)
}

// Operation names carried by ProviderError.
const (
	OpGenerateStructured = "generate_structured"
	OpGenerateText       = "generate_text"
	OpSearch             = "search"
)

// ProviderError reports a failed call to a Generator or Searcher.
type ProviderError struct {
	Op    string
	Model string
	Query string
	Err   error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Query != "":
		return fmt.Sprintf("%s %q: %v", e.Op, e.Query, e.Err)
	case e.Model != "":
		return fmt.Sprintf("%s with %s: %v", e.Op, e.Model, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the underlying provider marked the failure as
// transient.
func (e *ProviderError) Retryable() bool { return llm.IsRetryable(e.Err) }

// LLMGenerator implements Generator over an llm.Provider.
type LLMGenerator struct {
	provider   llm.Provider
	structured *structured.Generator
}

// NewLLMGenerator wraps provider. opts configure structured generation.
func NewLLMGenerator(provider llm.Provider, opts ...structured.Option) *LLMGenerator {
	return &LLMGenerator{
		provider:   provider,
		structured: structured.NewGenerator(provider, opts...),
	}
}

// GenerateStructured implements Generator.
func (g *LLMGenerator) GenerateStructured(ctx context.Context, model, prompt string, target any) error {
	return g.structured.GenerateInto(ctx, model, prompt, target)
}

// GenerateText implements Generator.
func (g *LLMGenerator) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.provider.Completion(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return llm.Text(resp)
}
