package store

import (
	"testing"
	"time"

	"github.com/bkonkle/cowork/internal/task"
)

func TestReconcile(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	rec := func(s task.Status, at time.Time) *task.Task {
		return &task.Task{ID: "t1", Status: s, UpdatedAt: at}
	}
	var zero time.Time

	tests := []struct {
		name     string
		stored   *task.Task
		incoming *task.Task
		want     Decision
	}{
		{"unknown status", rec(task.StatusExecuting, zero), rec("bogus", zero), RejectUnknownStatus},
		{"no stored record", nil, rec(task.StatusExecuting, zero), Accept},
		{"forward without key", rec(task.StatusNotStarted, zero), rec(task.StatusExecuting, zero), Accept},
		{"same status without key", rec(task.StatusExecuting, zero), rec(task.StatusExecuting, zero), Accept},
		{"regression without key", rec(task.StatusExecuting, zero), rec(task.StatusPlanning, zero), RejectRegression},
		{"stale by key", rec(task.StatusExecuting, t1), rec(task.StatusExecuting, t0), RejectStale},
		{"newer regression by key", rec(task.StatusExecuting, t0), rec(task.StatusPlanning, t1), Accept},
		{"completed protected from executing", rec(task.StatusCompleted, zero), rec(task.StatusExecuting, zero), RejectTerminal},
		{"completed protected from newer executing", rec(task.StatusCompleted, t0), rec(task.StatusExecuting, t1), RejectTerminal},
		{"cancelled protected from not started", rec(task.StatusCancelled, zero), rec(task.StatusNotStarted, zero), RejectTerminal},
		{"same terminal refresh", rec(task.StatusCompleted, zero), rec(task.StatusCompleted, zero), Accept},
		{"different terminal without key", rec(task.StatusCompleted, zero), rec(task.StatusFailed, zero), RejectTerminal},
		{"different terminal same time", rec(task.StatusCompleted, t0), rec(task.StatusFailed, t0), RejectTerminal},
		{"different terminal strictly newer", rec(task.StatusCompleted, t0), rec(task.StatusFailed, t1), Accept},
		{"stored key only", rec(task.StatusExecuting, t0), rec(task.StatusCompleted, zero), Accept},
		{"incoming key only regression", rec(task.StatusExecuting, zero), rec(task.StatusNotStarted, t0), RejectRegression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconcile(tt.stored, tt.incoming); got != tt.want {
				t.Errorf("Reconcile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stored := &task.Task{
		ID:          "t1",
		Goal:        "Summarize Q4 notes",
		Description: "notes in docs/",
		Status:      task.StatusExecuting,
		CreatedAt:   started.Add(-time.Minute),
		StartedAt:   &started,
		Metadata:    map[string]any{"steps": 3, "risk": "low"},
		Progress:    &task.Progress{CurrentStep: 2, TotalSteps: 3},
		UpdatedAt:   started.Add(time.Second),
	}
	incoming := &task.Task{
		ID:       "t1",
		Status:   task.StatusCompleted,
		Result:   "done",
		Metadata: map[string]any{"risk": "none"},
	}

	got := Merge(stored, incoming)

	if got.Status != task.StatusCompleted || got.Result != "done" {
		t.Errorf("incoming fields not applied: %+v", got)
	}
	if got.Goal != stored.Goal || got.Description != stored.Description {
		t.Errorf("empty incoming text should keep stored values: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.StartedAt == stored.StartedAt {
		t.Error("StartedAt must not alias the stored pointer")
	}
	if got.Progress == nil || got.Progress.CurrentStep != 2 {
		t.Errorf("Progress = %+v, want stored progress", got.Progress)
	}
	if !got.UpdatedAt.Equal(stored.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want stored key kept", got.UpdatedAt)
	}
	if got.Metadata["steps"] != 3 || got.Metadata["risk"] != "none" {
		t.Errorf("Metadata = %v, want merged with incoming winning", got.Metadata)
	}
	if stored.Metadata["risk"] != "low" {
		t.Error("Merge must not mutate the stored record")
	}
}
