package main

import (
	"time"

	"github.com/spf13/cobra"

	"driftmap/internal/config"
	"driftmap/internal/output"
)

var (
	analyzeBase         string
	analyzeSkipDiff     bool
	analyzeNoEmbeddings bool
	analyzeProvider     string
	analyzeLabel        string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the tree into a dependency graph",
	Long: `Walk the source tree, parse every supported file, and build the
dependency graph: one node per file with its diff status, dependency edges
from resolved imports with broken-edge flags, and semantic edges from
embedding similarity.

The result is appended to the snapshot history.

Examples:
  driftmap analyze
  driftmap analyze --base=develop
  driftmap analyze --skip-diff --no-embeddings
  driftmap analyze --label="before refactor"`,
	Args: cobra.NoArgs,
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBase, "base", "", "Base branch for diff comparison (default: auto-detect)")
	analyzeCmd.Flags().BoolVar(&analyzeSkipDiff, "skip-diff", false, "Skip diff awareness; all files report unchanged")
	analyzeCmd.Flags().BoolVar(&analyzeNoEmbeddings, "no-embeddings", false, "Skip the embedding pipeline and semantic edges")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "Vector store provider override (sqlite, pinecone, pgvector)")
	analyzeCmd.Flags().StringVar(&analyzeLabel, "label", "", "Label recorded on this run's history snapshot")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	start := time.Now()
	eng, logger := mustEngine(func(cfg *config.Config) {
		if analyzeBase != "" {
			cfg.BaseBranch = analyzeBase
		}
		if analyzeSkipDiff {
			cfg.SkipDiff = true
		}
		if analyzeNoEmbeddings {
			cfg.Embeddings.Enabled = false
		}
		if analyzeProvider != "" {
			cfg.Vector.Provider = analyzeProvider
		}
	})
	defer eng.Close()

	g, err := eng.Analyze(newContext(), analyzeLabel)
	if err != nil {
		fatal(err)
	}

	output.SortEdges(g.Edges)
	printResponse(g)

	logger.Debug("analyze command finished",
		"files", len(g.Nodes),
		"edges", len(g.Edges),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
}
