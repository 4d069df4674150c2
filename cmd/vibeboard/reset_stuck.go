package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openvibe/vibeboard/internal/store"
	"github.com/openvibe/vibeboard/pkg/models"
)

var resetStuckCmd = &cobra.Command{
	Use:   "reset-stuck <board-id>",
	Short: "Reset failed tasks to pending",
	Long: `Return every failed task on the board to pending, clearing its error
and timestamps. Dependency edges are untouched. Re-run the board with
'vibeboard run --resume' afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runResetStuck,
}

func runResetStuck(cmd *cobra.Command, args []string) error {
	boardID := args[0]

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	db, err := store.Open(store.DefaultPath(cwd))
	if err != nil {
		return fmt.Errorf("open board store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate board store: %w", err)
	}

	tasks, err := db.LoadTasks(boardID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("board %s not found", boardID)
	}

	var count int
	for _, t := range tasks {
		if t.Status != models.TaskStatusFailed {
			continue
		}
		t.Status = models.TaskStatusPending
		t.Result = ""
		t.Error = ""
		t.StartedAt = nil
		t.CompletedAt = nil
		if err := db.SaveTask(boardID, t); err != nil {
			return err
		}
		count++
	}

	fmt.Printf("Reset %d failed task(s) on board %s\n", count, boardID)
	return nil
}
