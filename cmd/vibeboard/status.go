package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvibe/vibeboard/internal/store"
	"github.com/openvibe/vibeboard/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [board-id]",
	Short: "Show board state",
	Long: `Display persisted boards and their task status counts. With a board
id, also list failed tasks and their errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dbPath := store.DefaultPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No boards yet. Run 'vibeboard run <plan>' to start.")
		return nil
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open board store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate board store: %w", err)
	}

	if len(args) == 1 {
		return printBoard(db, args[0])
	}

	boards, err := db.Boards()
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		fmt.Println("No boards yet. Run 'vibeboard run <plan>' to start.")
		return nil
	}
	for _, b := range boards {
		counts, err := db.StatusCounts(b.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", b.ID, formatCounts(counts))
		if b.Goal != "" {
			fmt.Printf("         goal: %s\n", b.Goal)
		}
	}
	return nil
}

func printBoard(db *store.DB, boardID string) error {
	tasks, err := db.LoadTasks(boardID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("board %s not found", boardID)
	}

	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("Board %s: %s\n", boardID, formatCounts(models.Count(tasks)))
	for _, t := range tasks {
		if t.Status == models.TaskStatusFailed {
			fmt.Printf("  %s %s: %s\n", red("✗"), t.Title, t.Error)
		}
	}
	return nil
}

func formatCounts(c models.StatusCounts) string {
	return fmt.Sprintf("%d/%d completed, %d failed, %d in progress, %d pending",
		c.Completed, c.Total(), c.Failed, c.InProgress, c.Pending)
}
