package research

import (
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/researchflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.June, 3, 10, 0, 0, 0, time.UTC)

func TestFormatResults(t *testing.T) {
	got := FormatResults([]Source{
		{Title: "Go", URL: "https://go.dev", Content: "The Go language"},
		{Title: "Tour", URL: "https://go.dev/tour", Content: "A tour"},
	})
	want := "Source [1]: Go\nURL: https://go.dev\nContent: The Go language\n\n" +
		"Source [2]: Tour\nURL: https://go.dev/tour\nContent: A tour\n\n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatResults(nil))
}

func TestCitationList(t *testing.T) {
	got := CitationList([]Source{
		{Title: "Go", URL: "https://go.dev"},
		{Title: "Tour", URL: "https://go.dev/tour"},
	})
	assert.Equal(t, "[1]: [Go](https://go.dev)\n[2]: [Tour](https://go.dev/tour)", got)
	assert.Empty(t, CitationList(nil))
}

func TestResearchTopic(t *testing.T) {
	single := []Message{{Role: llm.RoleUser, Content: "What is Go?"}}
	assert.Equal(t, "What is Go?", ResearchTopic(single))

	convo := []Message{
		{Role: llm.RoleUser, Content: "What is Go?"},
		{Role: llm.RoleAssistant, Content: "A language."},
		{Role: llm.RoleSystem, Content: "ignored"},
		{Role: llm.RoleUser, Content: "Who made it?"},
	}
	assert.Equal(t, "User: What is Go?\nAssistant: A language.\nUser: Who made it?\n", ResearchTopic(convo))
	assert.Empty(t, ResearchTopic(nil))
}

func TestQueryWriterPrompt(t *testing.T) {
	p, err := QueryWriterPrompt("  What is Go?\n", 3, fixedNow)
	require.NoError(t, err)
	assert.Contains(t, p, "at most 3 queries")
	assert.Contains(t, p, "June 3, 2025")
	assert.True(t, strings.HasSuffix(p, "Question: What is Go?"))
}

func TestReflectionPrompt(t *testing.T) {
	p, err := ReflectionPrompt("What is Go?", "Source [1]: Go", fixedNow)
	require.NoError(t, err)
	assert.Contains(t, p, `answer: "What is Go?"`)
	assert.Contains(t, p, `"follow_up_queries"`)
	assert.True(t, strings.HasSuffix(p, "Summaries:\nSource [1]: Go"))

	empty, err := ReflectionPrompt("What is Go?", "", fixedNow)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(empty, "Summaries:\n"))
}

func TestAnswerPrompt(t *testing.T) {
	p, err := AnswerPrompt("What is Go?", "summary", "[1]: [Go](https://go.dev)", fixedNow)
	require.NoError(t, err)
	assert.Contains(t, p, "Today is June 3, 2025.")
	assert.Contains(t, p, "Summaries:\nsummary")
	assert.Contains(t, p, `"Source [n]" labels inside each summary are numbered per search and are not citations`)
	assert.Contains(t, p, "Only the numbers in the source list are valid.")
	assert.True(t, strings.HasSuffix(p, "Source list:\n[1]: [Go](https://go.dev)"))
}
