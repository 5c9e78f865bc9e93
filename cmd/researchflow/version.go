package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "researchflow %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
