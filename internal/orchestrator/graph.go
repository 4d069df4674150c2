package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openvibe/vibeboard/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// InvalidTransitionError indicates an illegal status transition was attempted.
// This is a scheduler-logic error, fatal to the operation attempting it, and
// must never be silently swallowed.
type InvalidTransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: task %s: %s -> %s", e.TaskID, e.From, e.To)
}

// TransitionPayload carries the data applied together with a transition.
type TransitionPayload struct {
	// Result is the success payload; applied only when completing.
	Result string
	// Error is the failure description; applied only when failing.
	Error string
}

// TaskGraph is the authoritative, invariant-preserving view over one board's
// tasks and their dependency edges. All task mutation flows through
// Transition and Reset; readers get copies.
type TaskGraph struct {
	boardID string

	mu    sync.RWMutex
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// reverse maps task ID to IDs of tasks that depend on it.
	reverse map[string][]string

	emitter *EventEmitter
}

// NewTaskGraph creates an empty graph for one board. Events for every
// transition go to emitter; pass nil to disable emission.
func NewTaskGraph(boardID string, emitter *EventEmitter) *TaskGraph {
	return &TaskGraph{
		boardID: boardID,
		nodes:   make(map[string]*models.Task),
		edges:   make(map[string][]string),
		reverse: make(map[string][]string),
		emitter: emitter,
	}
}

// Build constructs the dependency graph from a slice of tasks. Returns an
// error if a task depends on itself or an unknown task, or a cycle exists.
// Acyclicity is a construction-time obligation of the planner; the graph
// never repairs it.
func (g *TaskGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		if _, dup := g.nodes[task.ID]; dup {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if depID == task.ID {
				return fmt.Errorf("task %s depends on itself", task.ID)
			}
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.reverse[depID] = append(g.reverse[depID], task.ID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// hasCycleLocked detects back edges via depth-first search with coloring.
// Caller must hold g.mu.
func (g *TaskGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// IsReady returns true iff the task is pending and every dependency completed.
func (g *TaskGraph) IsReady(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isReadyLocked(taskID)
}

func (g *TaskGraph) isReadyLocked(taskID string) bool {
	task, ok := g.nodes[taskID]
	if !ok || task.Status != models.TaskStatusPending {
		return false
	}
	for _, depID := range g.edges[taskID] {
		if dep := g.nodes[depID]; dep == nil || dep.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// ReadyTasks returns the ids of all tasks satisfying IsReady.
func (g *TaskGraph) ReadyTasks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ready []string
	for id := range g.nodes {
		if g.isReadyLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// DependentsOf returns the ids of tasks that depend on taskID. Used to narrow
// readiness recomputation after a completion.
func (g *TaskGraph) DependentsOf(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.reverse[taskID]...)
}

// Transition applies a status change under the legal transition table:
//
//	pending     --dispatch--> in_progress
//	in_progress --success-->  completed
//	in_progress --failure-->  failed
//
// Anything else is an InvalidTransitionError. The mutation is atomic per
// task: a competing transition on the same task observes the updated status
// and is rejected by the table instead of interleaving.
func (g *TaskGraph) Transition(taskID string, newStatus models.TaskStatus, payload TransitionPayload) error {
	g.mu.Lock()
	task, ok := g.nodes[taskID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("unknown task %s", taskID)
	}

	old := task.Status
	if !legalTransition(old, newStatus) {
		g.mu.Unlock()
		return &InvalidTransitionError{TaskID: taskID, From: old, To: newStatus}
	}

	now := time.Now()
	task.Status = newStatus
	switch newStatus {
	case models.TaskStatusInProgress:
		task.StartedAt = &now
	case models.TaskStatusCompleted:
		task.Result = payload.Result
		task.Error = ""
		task.CompletedAt = &now
	case models.TaskStatusFailed:
		task.Error = payload.Error
		task.CompletedAt = &now
	}
	title := task.Title
	g.mu.Unlock()

	// The graph is updated before the event leaves: a subscriber reacting to
	// a completion always observes dependents as ready.
	g.emit(Event{
		Type:      EventTaskStatusChanged,
		TaskID:    taskID,
		TaskTitle: title,
		OldStatus: old,
		NewStatus: newStatus,
		Message:   payload.Error,
		Timestamp: now,
	})
	return nil
}

func legalTransition(from, to models.TaskStatus) bool {
	switch from {
	case models.TaskStatusPending:
		return to == models.TaskStatusInProgress
	case models.TaskStatusInProgress:
		return to == models.TaskStatusCompleted || to == models.TaskStatusFailed
	default:
		return false
	}
}

// Reset returns a failed or in-progress task to pending, clearing result,
// error, and timestamps. Dependency edges are untouched, so readiness after a
// reset matches readiness before the task ever ran. Completed tasks are never
// reset here: discarding an accepted result must be an explicit user action
// at the board level, not an engine-side rollback.
func (g *TaskGraph) Reset(taskID string) error {
	g.mu.Lock()
	task, ok := g.nodes[taskID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("unknown task %s", taskID)
	}
	old := task.Status
	if old != models.TaskStatusFailed && old != models.TaskStatusInProgress {
		g.mu.Unlock()
		return &InvalidTransitionError{TaskID: taskID, From: old, To: models.TaskStatusPending}
	}
	task.Status = models.TaskStatusPending
	task.Result = ""
	task.Error = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	title := task.Title
	g.mu.Unlock()

	g.emit(Event{
		Type:      EventTaskReset,
		TaskID:    taskID,
		TaskTitle: title,
		OldStatus: old,
		NewStatus: models.TaskStatusPending,
		Timestamp: time.Now(),
	})
	return nil
}

// Task returns a copy of the task, or nil if unknown. Readers never get the
// live pointer.
func (g *TaskGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task, ok := g.nodes[taskID]
	if !ok {
		return nil
	}
	return task.Clone()
}

// Tasks returns copies of all tasks.
func (g *TaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Task, 0, len(g.nodes))
	for _, task := range g.nodes {
		out = append(out, task.Clone())
	}
	return out
}

// TasksWithStatus returns the ids of tasks currently in the given status.
func (g *TaskGraph) TasksWithStatus(status models.TaskStatus) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, task := range g.nodes {
		if task.Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// Counts returns the status tally for the board.
func (g *TaskGraph) Counts() models.StatusCounts {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var c models.StatusCounts
	for _, task := range g.nodes {
		switch task.Status {
		case models.TaskStatusPending:
			c.Pending++
		case models.TaskStatusInProgress:
			c.InProgress++
		case models.TaskStatusCompleted:
			c.Completed++
		case models.TaskStatusFailed:
			c.Failed++
		}
	}
	return c
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// BoardID returns the owning board's id.
func (g *TaskGraph) BoardID() string {
	return g.boardID
}

func (g *TaskGraph) emit(ev Event) {
	if g.emitter != nil {
		g.emitter.Emit(ev)
	}
}
