// Package task provides the client-side domain model for cowork.
//
// A Task is a user-submitted goal tracked through planning and execution on
// the backend. The client never runs tasks itself; it mirrors the backend's
// view of them and reconciles updates that arrive over REST and the event
// channel.
package task

import (
	"strings"
	"time"
)

// Task is the client's record of a backend task.
type Task struct {
	ID          string         `json:"id" yaml:"id"`
	Goal        string         `json:"goal" yaml:"goal"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status         `json:"status" yaml:"status"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Result      string         `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Progress    *Progress      `json:"progress,omitempty" yaml:"progress,omitempty"`

	// UpdatedAt is the server-side time of the update this record reflects.
	// Zero when the source (most REST responses) carries no ordering key.
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Progress tracks step-level execution progress.
type Progress struct {
	CurrentStep    int     `json:"current_step" yaml:"current_step"`
	TotalSteps     int     `json:"total_steps" yaml:"total_steps"`
	CompletedSteps int     `json:"completed_steps" yaml:"completed_steps"`
	FailedSteps    int     `json:"failed_steps" yaml:"failed_steps"`
	Percent        float64 `json:"percent" yaml:"percent"`
}

// Status values for the task lifecycle.
type Status string

const (
	// StatusNotStarted - Plan created, execution not requested
	StatusNotStarted Status = "not_started"
	// StatusPlanning - Backend is generating the plan
	StatusPlanning Status = "planning"
	// StatusExecuting - Backend is running plan steps
	StatusExecuting Status = "executing"
	// StatusCompleted - Finished successfully (terminal state)
	StatusCompleted Status = "completed"
	// StatusFailed - Finished with an error (terminal state)
	StatusFailed Status = "failed"
	// StatusCancelled - Stopped by the user (terminal state)
	StatusCancelled Status = "cancelled"
)

// IsValid checks if a Status value is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusPlanning, StatusExecuting,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Rank orders statuses along the lifecycle (higher = further along).
// All terminal statuses share the highest rank.
func (s Status) Rank() int {
	switch s {
	case StatusNotStarted:
		return 0
	case StatusPlanning:
		return 1
	case StatusExecuting:
		return 2
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 3
	default:
		return -1
	}
}

// NormalizeStatus maps a backend status string onto the client's Status enum.
// The backend reports execution states in its own vocabulary (pending, running,
// success, timeout, ...). Unknown values return "".
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "not_started", "created":
		return StatusNotStarted
	case "planning":
		return StatusPlanning
	case "running", "executing", "in_progress":
		return StatusExecuting
	case "success", "completed", "complete", "done":
		return StatusCompleted
	case "failed", "failure", "error", "timeout", "permission_denied":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return ""
	}
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Progress != nil {
		p := *t.Progress
		c.Progress = &p
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Duration returns how long the task ran, or zero if it never started.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}
