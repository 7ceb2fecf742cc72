package main

import (
	"github.com/spf13/cobra"

	"driftmap/internal/engine"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded analysis snapshots",
	Long: `Show the snapshot history, newest first: when each analysis ran,
on which branch and commit, and how many files, edges, and broken edges
it found.

Examples:
  driftmap history
  driftmap history --limit=5`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum snapshots to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

// historyResponse lists snapshots newest first.
type historyResponse struct {
	Snapshots []engine.Snapshot `json:"snapshots" yaml:"snapshots"`
}

func runHistory(cmd *cobra.Command, args []string) {
	eng, _ := mustEngine(nil)
	defer eng.Close()

	printResponse(&historyResponse{Snapshots: eng.History().Snapshots(historyLimit)})
}
