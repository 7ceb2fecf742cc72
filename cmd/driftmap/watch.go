package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"driftmap/internal/conflict"
	"driftmap/internal/engine"
	"driftmap/internal/graph"
	"driftmap/internal/output"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze continuously as the tree changes",
	Long: `Poll the working tree and git state, re-running the analysis after
each burst of changes settles. Edits arriving mid-analysis queue exactly
one follow-up run. Conflict detection runs in the background after each
pass.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	eng, logger := mustEngine(nil)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onResult := func(g *graph.Graph) {
		s := output.Summarize(g)
		line := fmt.Sprintf("[%s] %d files, %d edges",
			time.Now().Format("15:04:05"), s.Files, s.DependencyEdges+s.SemanticEdges)
		if s.BrokenEdges > 0 {
			line += fmt.Sprintf(", %d broken", s.BrokenEdges)
		}
		if s.Changed > 0 {
			line += fmt.Sprintf(", %d changed", s.Changed)
		}
		fmt.Println(line)
	}
	onConflicts := func(warnings []conflict.Warning) {
		for _, w := range warnings {
			fmt.Printf("  conflict [%s] %s\n", w.Severity, w.Description)
		}
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", eng.Root())
	w := engine.NewWatcher(eng, onResult, onConflicts)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("watch stopped")
	return nil
}
