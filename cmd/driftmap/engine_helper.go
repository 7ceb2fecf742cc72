package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"driftmap/internal/config"
	"driftmap/internal/engine"
	"driftmap/internal/logging"
)

// fatal prints the error and exits. Per the error contract only
// configuration problems reach this; everything else degrades inside the
// engine.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// mustRepoRoot returns the analysis root. driftmap operates on the
// current directory, like git.
func mustRepoRoot() string {
	root, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	return root
}

// newLogger builds the command logger writing to stderr, so stdout stays
// clean for the formatted response. --format=json switches the log stream
// to JSON as well.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logging.LevelFromString(cfg.Logging.Level)
	if verboseFlag {
		level = slog.LevelDebug
	}
	if formatFlag == string(FormatJSON) || cfg.Logging.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(os.Stderr, level)
}

// mustLoadConfig reads .driftmap/config.json under root. Missing files
// yield defaults; invalid files are fatal.
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		fatal(err)
	}
	return cfg
}

// mustEngine bootstraps the engine for one command run. mutate adjusts the
// loaded config before construction (flag overrides).
func mustEngine(mutate func(*config.Config)) (*engine.Engine, *slog.Logger) {
	root := mustRepoRoot()
	cfg := mustLoadConfig(root)
	if mutate != nil {
		mutate(cfg)
	}
	logger := newLogger(cfg)

	eng, err := engine.New(root, cfg, logger)
	if err != nil {
		fatal(err)
	}
	return eng, logger
}

// newContext returns the context for one command execution.
func newContext() context.Context {
	return context.Background()
}

// printResponse formats and prints a response to stdout.
func printResponse(resp any) {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		fatal(err)
	}
	fmt.Println(out)
}
