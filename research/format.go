package research

import (
	"fmt"
	"strings"
)

const (
	reflectionSeparator = "\n\n---\n\n"
	answerSeparator     = "\n---\n\n"
)

// FormatResults renders the results of one search as a citation-numbered
// block. Numbering starts at 1 for each search.
func FormatResults(results []Source) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "Source [%d]: %s\nURL: %s\nContent: %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return sb.String()
}

// CitationList numbers sources by their 1-based position, one per line.
func CitationList(sources []Source) string {
	lines := make([]string, len(sources))
	for i, s := range sources {
		lines[i] = fmt.Sprintf("[%d]: [%s](%s)", i+1, s.Title, s.URL)
	}
	return strings.Join(lines, "\n")
}
