package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvibe/vibeboard/internal/config"
	"github.com/openvibe/vibeboard/internal/orchestrator"
	"github.com/openvibe/vibeboard/internal/plan"
	"github.com/openvibe/vibeboard/internal/store"
	"github.com/openvibe/vibeboard/pkg/models"
)

var resumeBoardID string

var runCmd = &cobra.Command{
	Use:   "run [plan-file]",
	Short: "Execute a task plan",
	Long: `Load a plan file (YAML or JSON) and execute its task graph until no
further progress is possible. Use --resume to pick up a previously
persisted board instead of loading a plan.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&resumeBoardID, "resume", "", "Resume a persisted board by id")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

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

	board, err := loadBoard(db, args)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	emitter := orchestrator.NewEventEmitter(100)
	graph := orchestrator.NewTaskGraph(board.ID, emitter)
	if err := graph.Build(board.Tasks); err != nil {
		return fmt.Errorf("build task graph: %w", err)
	}
	if err := db.SaveBoard(board); err != nil {
		return fmt.Errorf("persist board: %w", err)
	}

	executor := orchestrator.NewExecutor(orchestrator.ExecutorConfig{
		Graph:        graph,
		Registry:     eng.registry,
		Selector:     eng.selector,
		Requests:     eng.requests,
		Store:        db,
		Emitter:      emitter,
		Logger:       orchestrator.NewDebugLoggerForDir(cwd),
		Preferred:    cfg.PreferredProvider(),
		PollInterval: cfg.Executor.PollInterval,
		MaxTokens:    cfg.Executor.MaxTokens,
		Temperature:  cfg.Executor.Temperature,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go printEvents(emitter.Events())

	fmt.Printf("Running board %s (%d tasks)\n", board.ID, len(board.Tasks))
	if err := executor.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	counts := graph.Counts()
	printSummary(counts)
	if counts.Failed > 0 {
		return fmt.Errorf("%d task(s) failed; run 'vibeboard reset-stuck %s' to retry", counts.Failed, board.ID)
	}
	return nil
}

// loadBoard reads the plan file, or reloads a persisted board for --resume.
func loadBoard(db *store.DB, args []string) (*models.Board, error) {
	if resumeBoardID != "" {
		board, err := db.LoadBoard(resumeBoardID)
		if err != nil {
			return nil, err
		}
		tasks, err := db.LoadTasks(resumeBoardID)
		if err != nil {
			return nil, err
		}
		// Executions from the previous process no longer exist; reload as
		// pending so the executor re-attempts them.
		for _, t := range tasks {
			if t.Status == models.TaskStatusInProgress {
				t.Status = models.TaskStatusPending
				t.StartedAt = nil
			}
		}
		board.Tasks = tasks
		return board, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("a plan file is required unless --resume is given")
	}
	return plan.LoadFile(args[0])
}

// printEvents streams engine events to the console.
func printEvents(events <-chan orchestrator.Event) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for ev := range events {
		switch ev.Type {
		case orchestrator.EventTaskStatusChanged:
			switch ev.NewStatus {
			case models.TaskStatusInProgress:
				fmt.Printf("  %s %s\n", yellow("▶"), ev.TaskTitle)
			case models.TaskStatusCompleted:
				fmt.Printf("  %s %s\n", green("✓"), ev.TaskTitle)
			case models.TaskStatusFailed:
				fmt.Printf("  %s %s: %s\n", red("✗"), ev.TaskTitle, ev.Message)
			}
		case orchestrator.EventTaskReset:
			fmt.Printf("  %s %s reset to pending\n", yellow("↺"), ev.TaskTitle)
		case orchestrator.EventProviderFallback:
			fmt.Printf("  %s %s\n", yellow("⚠"), ev.Message)
		}
	}
}

func printSummary(counts models.StatusCounts) {
	fmt.Printf("\nDone: %d completed, %d failed, %d pending\n",
		counts.Completed, counts.Failed, counts.Pending)
}
