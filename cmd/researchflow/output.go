package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/researchflow/research"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// answerMarkdown renders the answer followed by its numbered source list.
func answerMarkdown(res *research.Result) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(res.Answer))
	sb.WriteString("\n")
	if len(res.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, s := range res.Sources {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, s.Title, s.URL)
		}
	}
	if res.LoopCeilingReached {
		sb.WriteString("\n> Research stopped at the loop limit before the sources were judged sufficient.\n")
	}
	return sb.String()
}

// renderMarkdown styles md with glamour when w is a terminal.
func renderMarkdown(w io.Writer, md string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return md
	}
	width := 100
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
		width = min(cols, 120)
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

type jsonSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type jsonResult struct {
	RunID              string       `json:"run_id"`
	Answer             string       `json:"answer"`
	Sources            []jsonSource `json:"sources"`
	SearchQueries      []string     `json:"search_queries"`
	Loops              int          `json:"loops"`
	FailedSearches     []string     `json:"failed_searches,omitempty"`
	LoopCeilingReached bool         `json:"loop_ceiling_reached"`
}

func writeJSON(w io.Writer, res *research.Result) error {
	out := jsonResult{
		RunID:              res.RunID,
		Answer:             res.Answer,
		Sources:            make([]jsonSource, len(res.Sources)),
		SearchQueries:      res.State.SearchQueries,
		Loops:              res.State.LoopCount,
		LoopCeilingReached: res.LoopCeilingReached,
	}
	for i, s := range res.Sources {
		out.Sources[i] = jsonSource{Title: s.Title, URL: s.URL}
	}
	for _, f := range res.BranchFailures {
		out.FailedSearches = append(out.FailedSearches, f.Label)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
