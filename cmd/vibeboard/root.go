package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vibeboard",
	Short: "Multi-agent task board engine",
	Long: `Vibeboard executes a board of dependent agent tasks against a
generative-AI provider, with automatic provider fallback and manual
recovery of stuck tasks.

Core capabilities:
- Runs a planner-produced task graph, dispatching every ready task concurrently
- Selects a usable provider (local model, self-hosted endpoint, hosted API)
  with deterministic fallback
- Wraps every generation call in a cancellable timeout
- Lets the operator reset failed tasks without corrupting dependency state`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(resetStuckCmd)
}
