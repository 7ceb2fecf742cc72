package main

import (
	"github.com/spf13/cobra"

	"driftmap/internal/engine"
)

var (
	similarTop           int
	similarAllNamespaces bool
)

var similarCmd = &cobra.Command{
	Use:   "similar <file>",
	Short: "Find files most similar to a file",
	Long: `Look up the file's stored embedding and return its nearest
neighbors by cosine similarity. The file must have been embedded by a
previous analysis.

Examples:
  driftmap similar src/api.ts
  driftmap similar src/api.ts --top=5
  driftmap similar src/api.ts --all-namespaces`,
	Args: cobra.ExactArgs(1),
	Run:  runSimilar,
}

func init() {
	similarCmd.Flags().IntVar(&similarTop, "top", 10, "Number of results")
	similarCmd.Flags().BoolVar(&similarAllNamespaces, "all-namespaces", false,
		"Search every namespace of the remote index, not just this repo's")
	rootCmd.AddCommand(similarCmd)
}

// similarResponse pairs the query file with its neighbors.
type similarResponse struct {
	Path    string               `json:"path" yaml:"path"`
	Results []engine.SimilarFile `json:"results" yaml:"results"`
}

func runSimilar(cmd *cobra.Command, args []string) {
	eng, logger := mustEngine(nil)
	defer eng.Close()

	results, err := eng.NearestSimilar(newContext(), args[0], similarTop, similarAllNamespaces)
	if err != nil {
		fatal(err)
	}

	printResponse(&similarResponse{Path: args[0], Results: results})

	logger.Debug("similar command finished", "path", args[0], "results", len(results))
}
