package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/bkonkle/cowork/internal/task"
)

// ParseTime parses the backend's timestamps. The backend emits ISO-8601,
// with or without a zone; zone-less values are taken as UTC. Unparseable or
// empty values yield the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func timePtr(s string) *time.Time {
	t := ParseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Task converts a freshly created plan into a not-started task.
func (p *Plan) Task() *task.Task {
	return &task.Task{
		ID:        p.TaskID,
		Goal:      p.Goal,
		Status:    task.StatusNotStarted,
		CreatedAt: ParseTime(p.CreatedAt),
		Progress:  &task.Progress{TotalSteps: len(p.Steps)},
		Metadata: map[string]any{
			"steps":                  len(p.Steps),
			"estimated_tokens":       p.EstimatedTokens,
			"estimated_duration_min": p.EstimatedDurationMin,
		},
	}
}

// Task converts an execution status into a partial task update.
func (s *ExecutionStatus) Task() *task.Task {
	return &task.Task{
		ID:     s.TaskID,
		Status: task.NormalizeStatus(s.Status),
		Progress: &task.Progress{
			CurrentStep:    s.CurrentStep,
			TotalSteps:     s.TotalSteps,
			CompletedSteps: s.CompletedSteps,
			FailedSteps:    s.FailedSteps,
			Percent:        s.ProgressPercent,
		},
	}
}

// Task converts a final result into a task update.
func (r *ExecutionResult) Task() *task.Task {
	t := &task.Task{
		ID:          r.TaskID,
		Status:      task.NormalizeStatus(r.Status),
		Result:      r.Summary,
		Error:       strings.Join(r.Errors, "; "),
		CompletedAt: timePtr(r.CompletedAt),
	}
	if r.DurationMS > 0 {
		t.Metadata = map[string]any{"duration_ms": r.DurationMS}
	}
	return t
}

// Task converts a task detail into a full task record.
func (d *TaskDetail) Task() *task.Task {
	t := &task.Task{
		ID:          d.TaskID,
		Goal:        d.Goal,
		Description: d.Description,
		Status:      task.NormalizeStatus(d.Status),
		CreatedAt:   ParseTime(d.CreatedAt),
		StartedAt:   timePtr(d.StartedAt),
		CompletedAt: timePtr(d.CompletedAt),
		Error:       d.Error,
		Metadata:    d.Metadata,
	}
	switch v := d.Result.(type) {
	case nil:
	case string:
		t.Result = v
	default:
		t.Result = fmt.Sprint(v)
	}
	return t.Clone()
}

// Task converts a list entry into a task record.
func (s TaskSummary) Task() *task.Task {
	t := &task.Task{
		ID:          s.TaskID,
		Goal:        s.Goal,
		Status:      task.NormalizeStatus(s.Status),
		CreatedAt:   ParseTime(s.CreatedAt),
		CompletedAt: timePtr(s.CompletedAt),
	}
	if s.DurationMS > 0 {
		t.Metadata = map[string]any{"duration_ms": s.DurationMS}
	}
	return t
}
