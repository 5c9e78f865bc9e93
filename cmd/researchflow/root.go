package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "researchflow",
		Short: "ResearchFlow answers questions with iterative, cited web research",
		Long: `ResearchFlow plans search queries for a question, runs them in parallel,
reflects on what is still missing, and writes an answer that cites its sources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to config file (YAML)")

	root.AddCommand(newRunCmd(), newGraphCmd(), newVersionCmd())
	return root
}
