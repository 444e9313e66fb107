package event

// StepPayload is carried by StepStarted and StepComplete events.
type StepPayload struct {
	TaskID      string `json:"task_id,omitempty"`
	Step        int    `json:"step"`
	TotalSteps  int    `json:"total_steps,omitempty"`
	Action      string `json:"action,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ConfirmationPayload is carried by ConfirmationNeeded events.
type ConfirmationPayload struct {
	ID        string   `json:"id,omitempty"`
	TaskID    string   `json:"task_id,omitempty"`
	StepNum   int      `json:"step_num,omitempty"`
	Action    string   `json:"action"`
	Message   string   `json:"message"`
	Options   []string `json:"options,omitempty"`
	Dangerous bool     `json:"dangerous,omitempty"`
}

// CompletePayload is carried by TaskComplete events.
type CompletePayload struct {
	TaskID  string `json:"task_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Result  string `json:"result,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload is carried by Error events.
type ErrorPayload struct {
	TaskID  string `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Text returns the most specific error text available.
func (p ErrorPayload) Text() string {
	if p.Error != "" {
		return p.Error
	}
	return p.Message
}
