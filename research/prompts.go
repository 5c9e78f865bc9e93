package research

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/BaSui01/researchflow/llm"
)

// DateLayout is how the current date is written into prompts.
const DateLayout = "January 2, 2006"

// Clock returns the current time. Prompts use it for the current date.
type Clock func() time.Time

// promptData holds every variable available to the prompt templates.
type promptData struct {
	CurrentDate   string
	ResearchTopic string
	NumberQueries int
	Summaries     string
	Citations     string
}

var promptFuncs = template.FuncMap{
	"trim": strings.TrimSpace,
}

var queryWriterPrompt = template.Must(template.New("query_writer").Funcs(promptFuncs).Parse(
	`You plan web searches for an automated research assistant that reads the results and writes a cited report.

Guidelines:
- Prefer a single query. Add more only when the question has several distinct parts that one query cannot cover.
- Each query targets one aspect of the question.
- Return at most {{.NumberQueries}} queries.
- For broad topics spread the queries across different angles; never return near-duplicates.
- Aim for the most recent information. Today is {{.CurrentDate}}.

Reply with a JSON object holding:
- "rationale": a short explanation of how the queries cover the question
- "query": the list of search queries

Example:

Topic: Did Apple's revenue or its iPhone unit sales grow faster last year?
{"rationale": "Comparing the two needs Apple's total revenue growth and iPhone unit sales for the same fiscal year.", "query": ["Apple total revenue growth fiscal year 2024", "iPhone unit sales growth fiscal year 2024"]}

Question: {{trim .ResearchTopic}}`))

var reflectionPrompt = template.Must(template.New("reflection").Funcs(promptFuncs).Parse(
	`You review web search summaries gathered to answer: "{{trim .ResearchTopic}}".

Guidelines:
- Each summary lists its results as "Source [n]: title", then "URL: url", then "Content: snippet".
- Decide whether the summaries already support a complete answer to the question.
- If they do not, describe what is missing and write targeted follow-up search queries that close the gap.
- If they do, say so and return no follow-up queries.
- Follow-up queries must stand on their own without the surrounding context.
- Today is {{.CurrentDate}}.

Reply with a JSON object holding:
- "is_sufficient": true or false
- "knowledge_gap": what is missing, or an empty string when sufficient
- "follow_up_queries": the follow-up queries, or an empty list when sufficient

Example:
{"is_sufficient": false, "knowledge_gap": "The summaries confirm the tournament took place but not who won the individual awards.", "follow_up_queries": ["Euro 2024 best player award winner", "Euro 2024 top goal scorer"]}

Summaries:
{{.Summaries}}`))

var answerPrompt = template.Must(template.New("answer").Funcs(promptFuncs).Parse(
	`You write the final answer to a research question from the web search summaries below.

Guidelines:
- Today is {{.CurrentDate}}.
- Do not describe the research process or mention earlier steps.
- Use only the information in the summaries.
- Cite every claim inline with the bracketed source numbers from the source list, for example [1] or [2][3].
- The "Source [n]" labels inside each summary are numbered per search and are not citations. Only the numbers in the source list are valid.
- End with a "Sources" section that repeats the cited entries of the source list unchanged.

Question:
{{trim .ResearchTopic}}

Summaries:
{{.Summaries}}

Source list:
{{.Citations}}`))

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// QueryWriterPrompt renders the query generation prompt.
func QueryWriterPrompt(topic string, numberQueries int, now time.Time) (string, error) {
	return render(queryWriterPrompt, promptData{
		CurrentDate:   now.Format(DateLayout),
		ResearchTopic: topic,
		NumberQueries: numberQueries,
	})
}

// ReflectionPrompt renders the reflection prompt over the joined summaries.
func ReflectionPrompt(topic, summaries string, now time.Time) (string, error) {
	return render(reflectionPrompt, promptData{
		CurrentDate:   now.Format(DateLayout),
		ResearchTopic: topic,
		Summaries:     summaries,
	})
}

// AnswerPrompt renders the final answer prompt.
func AnswerPrompt(topic, summaries, citations string, now time.Time) (string, error) {
	return render(answerPrompt, promptData{
		CurrentDate:   now.Format(DateLayout),
		ResearchTopic: topic,
		Summaries:     summaries,
		Citations:     citations,
	})
}

// ResearchTopic turns the conversation into the question the prompts
// research. A single message is used as is; a longer conversation is
// rendered turn by turn.
func ResearchTopic(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			fmt.Fprintf(&sb, "User: %s\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n", m.Content)
		}
	}
	return sb.String()
}
