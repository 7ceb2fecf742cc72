package main

import (
	"github.com/spf13/cobra"

	"driftmap/internal/conflict"
)

var (
	conflictsBranch string
	conflictsBase   string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect cross-branch edit collisions",
	Long: `Compare the current branch's changes against every other local
branch through their common base. Warnings flag files both branches
modified, and files joined by a dependency or semantic edge that were
modified on different branches.

Examples:
  driftmap conflicts
  driftmap conflicts --branch=feature-x
  driftmap conflicts --base=develop`,
	Args: cobra.NoArgs,
	Run:  runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsBranch, "branch", "", "Branch to check (default: current)")
	conflictsCmd.Flags().StringVar(&conflictsBase, "base", "", "Base branch for comparison (default: auto-detect)")
	rootCmd.AddCommand(conflictsCmd)
}

// conflictsResponse lists detected collisions, worst first.
type conflictsResponse struct {
	Warnings []conflict.Warning `json:"warnings" yaml:"warnings"`
}

func runConflicts(cmd *cobra.Command, args []string) {
	eng, logger := mustEngine(nil)
	defer eng.Close()
	ctx := newContext()

	g, err := eng.Analyze(ctx, "")
	if err != nil {
		fatal(err)
	}

	warnings := eng.Conflicts(ctx, g, conflict.Options{
		CurrentBranch: conflictsBranch,
		BaseBranch:    conflictsBase,
	})

	printResponse(&conflictsResponse{Warnings: warnings})

	logger.Debug("conflicts command finished", "warnings", len(warnings))
}
