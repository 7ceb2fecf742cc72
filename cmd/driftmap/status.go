package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show operational state",
	Long: `Report the repository's driftmap state: cache row counts and size,
model artifact presence, vector provider, history size, and branch
context. Never fails; unavailable pieces are simply absent.`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	eng, _ := mustEngine(nil)
	defer eng.Close()

	printResponse(eng.Status())
}
