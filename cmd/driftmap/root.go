package main

import (
	"github.com/spf13/cobra"

	"driftmap/internal/version"
)

var (
	// formatFlag is the CLI --format flag value
	formatFlag string
	// verboseFlag enables debug logging
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "driftmap",
	Short: "driftmap - change-risk dependency graphs for source trees",
	Long: `driftmap analyzes a source tree into a dependency graph annotated with
change risk: which files import which, which imports are broken by signature
changes on a branch, which files are semantically entangled even without an
import, and where parallel branches are about to collide.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("driftmap version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human",
		"Output format: json, yaml, or human")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging")
}
