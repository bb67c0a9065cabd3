package models

import "time"

// TriggerSource names what started an execution.
type TriggerSource string

const (
	TriggerSourceManual  TriggerSource = "manual"
	TriggerSourceWebhook TriggerSource = "webhook"
	TriggerSourceCron    TriggerSource = "cron"
	TriggerSourceEvent   TriggerSource = "event"
)

// WebhookAuthMethod selects how inbound webhook calls are authenticated.
type WebhookAuthMethod string

const (
	WebhookAuthURLToken WebhookAuthMethod = "url_token"
	WebhookAuthBearer   WebhookAuthMethod = "bearer"
	WebhookAuthHMAC     WebhookAuthMethod = "hmac"
)

// WebhookTrigger binds a public token to a workflow trigger node. Tokens are never
// regenerated implicitly.
type WebhookTrigger struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	NodeID       string            `json:"node_id"`
	TriggerType  string            `json:"trigger_type"`
	WebhookURL   string            `json:"webhook_url"`
	WebhookToken string            `json:"-"`
	BearerToken  string            `json:"-"`
	HMACSecret   string            `json:"-"`
	AuthMethod   WebhookAuthMethod `json:"auth_method"`
	JSONSchema   map[string]any    `json:"json_schema,omitempty"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ScheduleTrigger fires a workflow on a cron expression.
type ScheduleTrigger struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	NodeID     string    `json:"node_id"`
	CronExpr   string    `json:"cron_expr"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}
