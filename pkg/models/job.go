package models

// JobPayload is the unit of work placed on the execution queue. ExecutionID doubles as
// the job id and idempotency key.
type JobPayload struct {
	WorkflowID  string         `json:"workflow_id"          validate:"required"`
	ExecutionID string         `json:"execution_id"         validate:"required"`
	TriggerData map[string]any `json:"trigger_data"`
	TriggeredBy TriggerSource  `json:"triggered_by"         validate:"required,oneof=manual webhook cron event"`
	TriggerID   string         `json:"trigger_id,omitempty"`
	UserID      string         `json:"user_id"              validate:"required"`
	Priority    int            `json:"priority,omitempty"   validate:"gte=0"`
}
