package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/internal/request"
	"github.com/openvibe/vibeboard/pkg/models"
)

// DefaultPollInterval is the executor's refresh cadence between explicit triggers.
const DefaultPollInterval = 5 * time.Second

// TaskStore is the persistence collaborator. The store is the system of
// record for terminal task state; the executor writes through on every
// terminal transition and reset.
type TaskStore interface {
	SaveTask(boardID string, task *models.Task) error
}

// ProviderResolver selects the effective provider for a dispatch.
// Implemented by provider.Selector; tests install fakes.
type ProviderResolver interface {
	Resolve(ctx context.Context, preferred models.ProviderID) (provider.Resolution, error)
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Graph    *TaskGraph
	Registry *provider.Registry
	Selector ProviderResolver
	Requests *request.Manager
	// Store is optional; a nil store disables write-through.
	Store TaskStore
	// Emitter receives executor-level events (fallback, board done).
	Emitter *EventEmitter
	Logger  *DebugLogger
	// Preferred is the user's preferred provider for all dispatches.
	Preferred models.ProviderID
	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration
	// MaxTokens and Temperature are applied to every generation request.
	MaxTokens   int
	Temperature float64
}

// Executor is the scheduling loop that turns a TaskGraph into forward
// progress: it scans for ready tasks, dispatches each concurrently, applies
// results, and detects stuck state. It imposes no task-level concurrency cap
// of its own; providers bound effective concurrency.
type Executor struct {
	cfg    ExecutorConfig
	logger *DebugLogger

	// kick wakes the loop outside the poll cadence (start, reset, completion).
	kick chan struct{}

	mu sync.Mutex
	// dispatching tracks task ids owned by a live dispatch goroutine, so a
	// tick never double-dispatches and reconciliation never mistakes a task
	// between transition and request registration for an orphan.
	dispatching map[string]struct{}

	wg sync.WaitGroup
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Executor{
		cfg:         cfg,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		dispatching: make(map[string]struct{}),
	}
}

// Run drives the board until no task is ready and none is in flight, or ctx
// is cancelled. Cancellation propagates to every outbound request.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.Kick() // initial dispatch without waiting a full interval

	for {
		select {
		case <-ctx.Done():
			e.cfg.Requests.CancelAll()
			e.wg.Wait()
			return ctx.Err()

		case <-e.kick:
		case <-ticker.C:
		}

		e.tick(ctx)

		if e.idle() {
			counts := e.cfg.Graph.Counts()
			e.logger.Log("[executor] board idle: %+v", counts)
			e.emit(Event{
				Type:      EventBoardDone,
				Message:   fmt.Sprintf("%d completed, %d failed, %d pending", counts.Completed, counts.Failed, counts.Pending),
				Timestamp: time.Now(),
			})
			e.wg.Wait()
			return nil
		}
	}
}

// idle reports that nothing is running and nothing can be started: either the
// board is finished or every remaining pending task is behind a failure and
// needs user action.
func (e *Executor) idle() bool {
	e.mu.Lock()
	inflight := len(e.dispatching)
	e.mu.Unlock()
	return inflight == 0 && len(e.cfg.Graph.ReadyTasks()) == 0
}

// Kick triggers an immediate scheduling pass. Used on start, after resets,
// and by tests. Non-blocking; a pending kick coalesces.
func (e *Executor) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// tick reconciles orphaned in-progress tasks, then dispatches every ready task.
func (e *Executor) tick(ctx context.Context) {
	e.reconcileOrphans()

	ready := e.cfg.Graph.ReadyTasks()
	sort.Strings(ready)
	e.logger.Log("[executor] tick: %d ready tasks: %v", len(ready), ready)
	for _, id := range ready {
		e.startDispatch(ctx, id)
	}
}

// reconcileOrphans resets in_progress tasks that have no live request and no
// dispatch goroutine. This happens when task state was recreated from the
// store with executions that no longer exist; reset, not failure, is the
// right recovery because nothing was actually attempted in this process.
func (e *Executor) reconcileOrphans() {
	for _, id := range e.cfg.Graph.TasksWithStatus(models.TaskStatusInProgress) {
		e.mu.Lock()
		_, owned := e.dispatching[id]
		e.mu.Unlock()
		if owned || e.cfg.Requests.InFlight(id) {
			continue
		}
		e.logger.Log("[executor] task %s in_progress with no live request, resetting", id)
		if err := e.cfg.Graph.Reset(id); err != nil {
			e.logger.Log("[executor] reconcile reset %s: %v", id, err)
			continue
		}
		e.saveTask(id)
	}
}

// startDispatch claims a task and runs its dispatch in its own goroutine.
func (e *Executor) startDispatch(ctx context.Context, taskID string) {
	e.mu.Lock()
	if _, dup := e.dispatching[taskID]; dup {
		e.mu.Unlock()
		return
	}
	e.dispatching[taskID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.dispatching, taskID)
			e.mu.Unlock()
			e.Kick()
		}()
		e.dispatch(ctx, taskID)
	}()
}

// dispatch performs the full sequence for one task: mark in_progress, build
// the request, resolve the provider, execute, and apply the outcome.
func (e *Executor) dispatch(ctx context.Context, taskID string) {
	if err := e.cfg.Graph.Transition(taskID, models.TaskStatusInProgress, TransitionPayload{}); err != nil {
		// Transition races are scheduler bugs; they must be loud.
		e.logger.Log("[executor] dispatch %s: %v", taskID, err)
		return
	}

	task := e.cfg.Graph.Task(taskID)
	genReq := e.buildRequest(task)

	res, err := e.execute(ctx, task, genReq)
	if err != nil {
		e.failTask(taskID, err)
		return
	}
	e.completeTask(taskID, res)
}

// execute resolves the provider and runs the generation call under the
// request manager's envelope.
func (e *Executor) execute(ctx context.Context, task *models.Task, genReq models.GenerationRequest) (models.GenerationResult, error) {
	resolution, err := e.cfg.Selector.Resolve(ctx, e.cfg.Preferred)
	if err != nil {
		return models.GenerationResult{}, err
	}
	if resolution.FellBack {
		// Required observable: the board must be able to show
		// "X unavailable, used Y instead".
		e.logger.Log("[executor] task %s: provider fallback %s -> %s (%s)", task.ID, resolution.From, resolution.Provider, resolution.Reason)
		e.emit(Event{
			Type:      EventProviderFallback,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			Provider:  resolution.Provider,
			Message:   fmt.Sprintf("%s unavailable, used %s instead: %s", resolution.From, resolution.Provider, resolution.Reason),
			Timestamp: time.Now(),
		})
	}

	adapter := e.cfg.Registry.Adapter(resolution.Provider)
	if adapter == nil {
		return models.GenerationResult{}, provider.NewError(provider.KindModelUnavailable, resolution.Provider,
			"no adapter registered")
	}

	return e.cfg.Requests.Run(ctx, task.ID, resolution.Provider, func(callCtx context.Context) (models.GenerationResult, error) {
		return adapter.Generate(callCtx, genReq)
	})
}

// buildRequest assembles the generation request from the task and the results
// of its completed dependencies.
func (e *Executor) buildRequest(task *models.Task) models.GenerationRequest {
	var b strings.Builder
	b.WriteString(task.Title)
	if task.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(task.Description)
	}
	for _, depID := range task.DependsOn {
		dep := e.cfg.Graph.Task(depID)
		if dep == nil || dep.Result == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Result of %q ---\n%s", dep.Title, dep.Result)
	}
	return models.GenerationRequest{
		Prompt:      b.String(),
		System:      actorSystemPrompt(task.ActorType),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
}

// actorSystemPrompt maps an actor role to its working instructions.
func actorSystemPrompt(actor models.ActorType) string {
	switch actor {
	case models.ActorPlanner:
		return "You are a planning agent. Break the goal into concrete, ordered steps."
	case models.ActorResearcher:
		return "You are a research agent. Gather and summarize the relevant facts."
	case models.ActorAnalyst:
		return "You are an analysis agent. Examine the inputs and draw grounded conclusions."
	case models.ActorCoder:
		return "You are a coding agent. Produce working, idiomatic code for the task."
	case models.ActorComposer:
		return "You are a composition agent. Combine the inputs into a coherent whole."
	case models.ActorWriter:
		return "You are a writing agent. Produce clear, well-structured prose."
	default:
		return "You are an agent completing one task on a board. Be direct and complete."
	}
}

// completeTask applies a success, persists it, and dispatches newly-ready
// dependents without a full graph rescan.
func (e *Executor) completeTask(taskID string, res models.GenerationResult) {
	if err := e.cfg.Graph.Transition(taskID, models.TaskStatusCompleted, TransitionPayload{Result: res.Text}); err != nil {
		e.logger.Log("[executor] complete %s: %v", taskID, err)
		return
	}
	e.saveTask(taskID)

	for _, depID := range e.cfg.Graph.DependentsOf(taskID) {
		if e.cfg.Graph.IsReady(depID) {
			e.Kick()
			break
		}
	}
}

// failTask applies a failure with its taxonomy-prefixed message.
func (e *Executor) failTask(taskID string, cause error) {
	msg := cause.Error()
	if provider.KindOf(cause) == provider.KindUnknown && !strings.HasPrefix(msg, string(provider.KindUnknown)) {
		msg = fmt.Sprintf("%s: %s", provider.KindUnknown, msg)
	}
	if err := e.cfg.Graph.Transition(taskID, models.TaskStatusFailed, TransitionPayload{Error: msg}); err != nil {
		e.logger.Log("[executor] fail %s: %v", taskID, err)
		return
	}
	e.saveTask(taskID)
}

// HasStuckTasks reports whether any task is failed, or in_progress with no
// live execution backing it.
func (e *Executor) HasStuckTasks() bool {
	if len(e.cfg.Graph.TasksWithStatus(models.TaskStatusFailed)) > 0 {
		return true
	}
	for _, id := range e.cfg.Graph.TasksWithStatus(models.TaskStatusInProgress) {
		e.mu.Lock()
		_, owned := e.dispatching[id]
		e.mu.Unlock()
		if !owned && !e.cfg.Requests.InFlight(id) {
			return true
		}
	}
	return false
}

// ResetStuck resets every failed task to pending and triggers a dispatch
// pass. This is the only retry path, and it is user-triggered: automatic
// retries against a persistently failing provider are a storm, not recovery.
// Returns the number of tasks reset.
func (e *Executor) ResetStuck() int {
	var count int
	for _, id := range e.cfg.Graph.TasksWithStatus(models.TaskStatusFailed) {
		if err := e.cfg.Graph.Reset(id); err != nil {
			e.logger.Log("[executor] reset stuck %s: %v", id, err)
			continue
		}
		e.saveTask(id)
		count++
	}
	if count > 0 {
		e.Kick()
	}
	return count
}

// CancelAll stops every in-flight request. Used on manual stop.
func (e *Executor) CancelAll() {
	e.cfg.Requests.CancelAll()
}

func (e *Executor) saveTask(taskID string) {
	if e.cfg.Store == nil {
		return
	}
	task := e.cfg.Graph.Task(taskID)
	if task == nil {
		return
	}
	if err := e.cfg.Store.SaveTask(e.cfg.Graph.BoardID(), task); err != nil {
		e.logger.Log("[executor] save task %s: %v", taskID, err)
	}
}

func (e *Executor) emit(ev Event) {
	if e.cfg.Emitter != nil {
		e.cfg.Emitter.Emit(ev)
	}
}
