// Package persistence provides the storage abstraction for workflows, executions, triggers
// and credentials.
package persistence

import (
	"context"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
)

type WorkflowRepository interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
}

// ExecutionRepository stores execution rows. Terminal executions are immutable:
// UpdateExecution returns ErrExecutionFinalized instead of overwriting them.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	UpdateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)
}

// StepRepository stores execution steps. StepOrder is unique per execution.
type StepRepository interface {
	CreateStep(ctx context.Context, step *models.ExecutionStep) error
	UpdateStep(ctx context.Context, step *models.ExecutionStep) error
	StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
	MaxStepOrder(ctx context.Context, executionID string) (int, error)
}

type TriggerRepository interface {
	WebhookTriggerByToken(ctx context.Context, token string) (*models.WebhookTrigger, error)
	SaveWebhookTrigger(ctx context.Context, trigger *models.WebhookTrigger) error
	ScheduleTriggers(ctx context.Context) ([]*models.ScheduleTrigger, error)
	SaveScheduleTrigger(ctx context.Context, trigger *models.ScheduleTrigger) error
}

type IntegrationRepository interface {
	// ActiveIntegration returns the user's active integration of the given type.
	ActiveIntegration(ctx context.Context, userID, integrationType string) (*models.Integration, error)
	Integrations(ctx context.Context) ([]*models.Integration, error)
	SaveIntegration(ctx context.Context, integration *models.Integration) error
}

type APIKeyRepository interface {
	APIKeyByHash(ctx context.Context, hashedKey string) (*models.APIKey, error)
	SaveAPIKey(ctx context.Context, key *models.APIKey) error
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
}

type Persistence interface {
	WorkflowRepository
	ExecutionRepository
	StepRepository
	TriggerRepository
	IntegrationRepository
	APIKeyRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
