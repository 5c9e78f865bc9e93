package main

import (
	"fmt"

	"github.com/BaSui01/researchflow/research"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the research flow as a Mermaid diagram",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), research.Mermaid())
		},
	}
}
