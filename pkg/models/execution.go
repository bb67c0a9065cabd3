package models

import "time"

// ExecutionStatus is the state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus is the state of one node visit.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ErrorDetail is the user-facing rendering of a raw failure message.
type ErrorDetail struct {
	Category    string `json:"category"`
	Message     string `json:"message"`
	Action      string `json:"action"`
	Severity    string `json:"severity"`
	Recoverable bool   `json:"recoverable"`
}

// Execution is one run of a workflow.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	UserID      string          `json:"user_id"`
	TriggeredBy TriggerSource   `json:"triggered_by"`
	TriggerID   string          `json:"trigger_id,omitempty"`
	TriggerData map[string]any  `json:"trigger_data,omitempty"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
	Error       *string         `json:"error,omitempty"`
	ErrorDetail *ErrorDetail    `json:"error_detail,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ExecutionStep records one node visit. StepOrder is strictly increasing within an
// execution and reconstructs the visitation order.
type ExecutionStep struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Status      StepStatus     `json:"status"`
	StepOrder   int            `json:"step_order"`
	Iteration   *int           `json:"iteration,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *string        `json:"error,omitempty"`
	ErrorDetail *ErrorDetail   `json:"error_detail,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}
