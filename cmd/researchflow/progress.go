package main

import (
	"fmt"
	"io"

	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/workflow"
)

// progressEmitter prints one line per research step to w.
func progressEmitter(w io.Writer) workflow.StreamEmitter {
	return func(ev workflow.StreamEvent) {
		switch ev.Type {
		case workflow.EventNodeStart:
			switch ev.Node {
			case research.NodeGenerateQuery:
				fmt.Fprintln(w, "• planning search queries")
			case research.NodeWebResearch:
				fmt.Fprintf(w, "  ↳ searching %q\n", ev.Label)
			case research.NodeReflection:
				fmt.Fprintln(w, "• reflecting on gathered sources")
			case research.NodeFinalizeAnswer:
				fmt.Fprintln(w, "• writing answer")
			}
		case workflow.EventWaveStart:
			fmt.Fprintf(w, "• research loop %d: %d queries\n", ev.Wave, ev.Count)
		case workflow.EventBranchError:
			fmt.Fprintf(w, "  ✗ search %q failed: %v\n", ev.Label, ev.Error)
		}
	}
}
