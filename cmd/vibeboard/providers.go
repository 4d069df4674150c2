package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvibe/vibeboard/internal/config"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Probe provider availability",
	Long:  `Probe every configured provider and report whether it can currently serve requests.`,
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	preferred := cfg.PreferredProvider()
	for _, id := range eng.registry.FallbackOrder() {
		spec, _ := eng.registry.Spec(id)
		mark := red("✗ unavailable")
		if eng.checker.Check(ctx, id) {
			mark = green("✓ available")
		}
		suffix := ""
		if id == preferred {
			suffix = " (preferred)"
		}
		fmt.Printf("  %-24s %s%s\n", spec.DisplayName, mark, suffix)
	}

	snap := eng.loader.Snapshot()
	fmt.Printf("\nLocal model: %s", snap.State)
	if snap.ModelID != "" {
		fmt.Printf(" (%s, %.0f%%)", snap.ModelID, snap.Progress*100)
	}
	if snap.Error != "" {
		fmt.Printf(" — %s", snap.Error)
	}
	fmt.Println()
	return nil
}
