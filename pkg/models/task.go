package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state (absent an explicit reset).
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ActorType identifies the agent role a task is assigned to.
type ActorType string

const (
	ActorPlanner    ActorType = "planner"
	ActorResearcher ActorType = "researcher"
	ActorAnalyst    ActorType = "analyst"
	ActorCoder      ActorType = "coder"
	ActorComposer   ActorType = "composer"
	ActorWriter     ActorType = "writer"
	ActorCustom     ActorType = "custom"
)

// Valid returns true if the actor type is a known value.
func (a ActorType) Valid() bool {
	switch a {
	case ActorPlanner, ActorResearcher, ActorAnalyst, ActorCoder, ActorComposer, ActorWriter, ActorCustom:
		return true
	default:
		return false
	}
}

// Task represents one unit of agent work on a board.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed instructions for the assigned actor.
	Description string `json:"description,omitempty"`
	// ActorType is the agent role this task is assigned to.
	ActorType ActorType `json:"actor_type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task may run.
	DependsOn []string `json:"depends_on,omitempty"`
	// Result holds the actor-specific success payload. Set only when completed.
	Result string `json:"result,omitempty"`
	// Error contains the failure description if the task failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

// Board is the full task set for one orchestration session.
// A board exclusively owns its tasks; a task has no existence outside it.
type Board struct {
	// ID is the unique identifier for this board.
	ID string `json:"id"`
	// Goal is the user objective the plan was produced for.
	Goal string `json:"goal,omitempty"`
	// Tasks is the complete task set, acyclic by construction.
	Tasks []*Task `json:"tasks"`
	// CreatedAt is when the board was created.
	CreatedAt time.Time `json:"created_at"`
}

// StatusCounts is a read-only aggregate of task statuses on a board.
type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the number of tasks counted.
func (c StatusCounts) Total() int {
	return c.Pending + c.InProgress + c.Completed + c.Failed
}

// Count tallies statuses across the given tasks.
func Count(tasks []*Task) StatusCounts {
	var c StatusCounts
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusPending:
			c.Pending++
		case TaskStatusInProgress:
			c.InProgress++
		case TaskStatusCompleted:
			c.Completed++
		case TaskStatusFailed:
			c.Failed++
		}
	}
	return c
}
