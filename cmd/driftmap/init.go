package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"driftmap/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize driftmap configuration",
	Long:  "Creates a .driftmap/ directory with the default configuration in the current directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	configPath := filepath.Join(root, ".driftmap", "config.json")
	if _, statErr := os.Stat(configPath); statErr == nil && !initForce {
		// Already initialized is success, so init is safe to re-run in CI.
		fmt.Println("driftmap already initialized.")
		fmt.Printf("Configuration at: %s\n", configPath)
		fmt.Println("\nRun 'driftmap init --force' to reset it.")
		return nil
	}

	if err := config.DefaultConfig().Save(root); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Println("driftmap initialized.")
	fmt.Printf("Configuration written to: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'driftmap analyze' to build the first graph")
	fmt.Println("  2. Run 'driftmap status' to inspect the state")
	return nil
}
