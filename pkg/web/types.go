package web

import "github.com/flowforge/flowforge/pkg/models"

// WebhookResponse answers an accepted webhook or manual run.
type WebhookResponse struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"executionId"`
	Message     string `json:"message"`
}

// WebhookInfoResponse describes a webhook trigger without revealing its secrets.
type WebhookInfoResponse struct {
	Exists     bool                     `json:"exists"`
	Active     bool                     `json:"active"`
	WorkflowID string                   `json:"workflowId,omitempty"`
	AuthMethod models.WebhookAuthMethod `json:"authMethod,omitempty"`
}

// HealthResponse is served on /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
