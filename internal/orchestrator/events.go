// Package orchestrator maintains a board's task dependency graph and drives
// task execution against the provider layer.
package orchestrator

import (
	"time"

	"github.com/openvibe/vibeboard/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskStatusChanged indicates a task moved between statuses.
	EventTaskStatusChanged EventType = "task_status_changed"
	// EventTaskReset indicates a task returned to pending via explicit reset.
	EventTaskReset EventType = "task_reset"
	// EventProviderFallback indicates the effective provider differed from the
	// preferred one for a dispatch.
	EventProviderFallback EventType = "provider_fallback"
	// EventBoardDone indicates no pending or in-progress tasks remain.
	EventBoardDone EventType = "board_done"
)

// Event is emitted on every observable state change. External renderers
// subscribe to these; nothing outside this package mutates task state.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// OldStatus and NewStatus describe a status transition.
	OldStatus models.TaskStatus
	NewStatus models.TaskStatus
	// Provider is the effective provider for dispatch/fallback events.
	Provider models.ProviderID
	// Message provides additional context, e.g. the fallback explanation.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
