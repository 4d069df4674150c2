package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed} {
		if !s.Valid() {
			t.Errorf("%s.Valid() = false, want true", s)
		}
	}
	for _, s := range []TaskStatus{"", "done", "PENDING"} {
		if s.Valid() {
			t.Errorf("%q.Valid() = true, want false", s)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusInProgress, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActorTypeValid(t *testing.T) {
	for _, a := range []ActorType{ActorPlanner, ActorResearcher, ActorAnalyst, ActorCoder, ActorComposer, ActorWriter, ActorCustom} {
		if !a.Valid() {
			t.Errorf("%s.Valid() = false, want true", a)
		}
	}
	if ActorType("wizard").Valid() {
		t.Error(`ActorType("wizard").Valid() = true, want false`)
	}
}

func TestTaskClone(t *testing.T) {
	started := time.Now()
	orig := &Task{
		ID:        "t1",
		Title:     "original",
		Status:    TaskStatusInProgress,
		DependsOn: []string{"t0"},
		StartedAt: &started,
	}
	cp := orig.Clone()

	cp.Title = "mutated"
	cp.DependsOn[0] = "other"
	*cp.StartedAt = cp.StartedAt.Add(time.Hour)

	if orig.Title != "original" {
		t.Error("Clone() shares Title")
	}
	if orig.DependsOn[0] != "t0" {
		t.Error("Clone() shares DependsOn backing array")
	}
	if !orig.StartedAt.Equal(started) {
		t.Error("Clone() shares StartedAt pointer")
	}
}

func TestCount(t *testing.T) {
	tasks := []*Task{
		{Status: TaskStatusPending},
		{Status: TaskStatusPending},
		{Status: TaskStatusInProgress},
		{Status: TaskStatusCompleted},
		{Status: TaskStatusFailed},
	}
	got := Count(tasks)
	want := StatusCounts{Pending: 2, InProgress: 1, Completed: 1, Failed: 1}
	if got != want {
		t.Errorf("Count() = %+v, want %+v", got, want)
	}
	if got.Total() != 5 {
		t.Errorf("Total() = %d, want 5", got.Total())
	}
}
