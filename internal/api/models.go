package api

// Step is one step of a plan.
type Step struct {
	Step        int            `json:"step" yaml:"step"`
	Action      string         `json:"action" yaml:"action"`
	Description string         `json:"description" yaml:"description"`
	Arguments   map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Status      string         `json:"status,omitempty" yaml:"status,omitempty"`
	Result      any            `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Plan is the backend's plan for a task.
type Plan struct {
	TaskID               string `json:"task_id" yaml:"task_id"`
	Goal                 string `json:"goal" yaml:"goal"`
	Steps                []Step `json:"steps" yaml:"steps"`
	EstimatedTokens      int    `json:"estimated_tokens" yaml:"estimated_tokens"`
	EstimatedDurationMin int    `json:"estimated_duration_min" yaml:"estimated_duration_min"`
	CreatedAt            string `json:"created_at" yaml:"created_at"`
}

// ExecutionStatus is the live execution state of a task.
type ExecutionStatus struct {
	TaskID          string  `json:"task_id" yaml:"task_id"`
	Status          string  `json:"status" yaml:"status"`
	CurrentStep     int     `json:"current_step" yaml:"current_step"`
	TotalSteps      int     `json:"total_steps" yaml:"total_steps"`
	CompletedSteps  int     `json:"completed_steps" yaml:"completed_steps"`
	FailedSteps     int     `json:"failed_steps" yaml:"failed_steps"`
	ProgressPercent float64 `json:"progress_percent" yaml:"progress_percent"`
	ElapsedMS       float64 `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// ExecutionResult is the final outcome of a task.
type ExecutionResult struct {
	TaskID        string   `json:"task_id" yaml:"task_id"`
	Status        string   `json:"status" yaml:"status"`
	Plan          Plan     `json:"plan" yaml:"plan"`
	StepsExecuted []Step   `json:"steps_executed" yaml:"steps_executed"`
	Errors        []string `json:"errors" yaml:"errors"`
	Summary       string   `json:"summary" yaml:"summary"`
	DurationMS    float64  `json:"duration_ms" yaml:"duration_ms"`
	CompletedAt   string   `json:"completed_at" yaml:"completed_at"`
}

// ConfirmationRequest answers a confirmation prompt.
type ConfirmationRequest struct {
	TaskID    string `json:"task_id"`
	Action    string `json:"action"`
	Confirmed bool   `json:"confirmed"`
	Response  string `json:"response,omitempty"`
}

// TaskSummary is one entry of the task list.
type TaskSummary struct {
	TaskID      string  `json:"task_id" yaml:"task_id"`
	Goal        string  `json:"goal" yaml:"goal"`
	Status      string  `json:"status" yaml:"status"`
	CreatedAt   string  `json:"created_at" yaml:"created_at"`
	CompletedAt string  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	DurationMS  float64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// TaskPage is a page of the task list.
type TaskPage struct {
	Tasks  []TaskSummary `json:"tasks" yaml:"tasks"`
	Total  int           `json:"total" yaml:"total"`
	Limit  int           `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset int           `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// TaskDetail is the full backend record of a task.
type TaskDetail struct {
	TaskID      string         `json:"task_id" yaml:"task_id"`
	Goal        string         `json:"goal" yaml:"goal"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	CreatedAt   string         `json:"created_at" yaml:"created_at"`
	StartedAt   string         `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Result      any            `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AuditEntry is one audit log record.
type AuditEntry struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	TaskID    string         `json:"task_id" yaml:"task_id"`
	Action    string         `json:"action" yaml:"action"`
	Resource  string         `json:"resource" yaml:"resource"`
	Status    string         `json:"status" yaml:"status"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// AuditLog is a page of audit entries.
type AuditLog struct {
	Entries []AuditEntry `json:"entries" yaml:"entries"`
	Total   int          `json:"total" yaml:"total"`
}

// Policy is the backend's permission policy.
type Policy struct {
	Folders                 []map[string]any          `json:"folders" yaml:"folders"`
	Tools                   map[string]map[string]any `json:"tools" yaml:"tools"`
	MaxTokensPerTask        int                       `json:"max_tokens_per_task" yaml:"max_tokens_per_task"`
	MaxExecutionTimeSeconds int                       `json:"max_execution_time_seconds" yaml:"max_execution_time_seconds"`
	AllowNetwork            bool                      `json:"allow_network" yaml:"allow_network"`
}

// Health is the liveness probe response.
type Health struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ErrorBody is the error document the backend returns with non-2xx statuses.
type ErrorBody struct {
	Error      string `json:"error,omitempty"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// ListOptions filters the task list.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

// AuditOptions filters the audit log.
type AuditOptions struct {
	Limit  int
	Offset int
	TaskID string
}
