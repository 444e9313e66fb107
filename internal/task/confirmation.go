package task

import (
	"time"

	"github.com/google/uuid"
)

// Confirmation is a backend request for the user to approve a step.
type Confirmation struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	StepNum   int       `json:"step_num,omitempty"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Options   []string  `json:"options,omitempty"`
	Dangerous bool      `json:"dangerous,omitempty"`
	Resolved  bool      `json:"resolved"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConfirmation creates a pending prompt. An empty id gets a generated one.
func NewConfirmation(id, taskID, action, message string) *Confirmation {
	if id == "" {
		id = uuid.NewString()
	}
	return &Confirmation{
		ID:        id,
		TaskID:    taskID,
		Action:    action,
		Message:   message,
		Options:   []string{"Yes", "No"},
		CreatedAt: time.Now(),
	}
}
