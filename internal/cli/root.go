// Package cli implements the imgrank command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "imgrank",
		Short:        "imgrank ranks image collections by CNN feature similarity",
		SilenceUsage: true, // don't print usage on operational errors
		Long: `imgrank pools CNN channel features, runs exact k-nearest-neighbor
search of query images against a collection and writes TREC rank files.`,
	}
	root.AddCommand(
		newRankCommand(),
		newPoolCommand(),
		newInspectCommand(),
		newSynthCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute is called by main.go.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
