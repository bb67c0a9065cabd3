// Package services holds the operations the HTTP surface, the scheduler and the admin CLI
// share: dispatching executions and reading or changing workflows.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 100
)

type Workflow struct {
	persistence persistence.Persistence
	types       workflow.TypeRegistry
	validate    *validator.Validate
	now         func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, types workflow.TypeRegistry) *Workflow {
	return &Workflow{
		persistence: persistence,
		types:       types,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, notFound("fetch_workflow", "workflow not found", err)
		}

		return nil, failures.Wrap(failures.KindTransient, "fetch_workflow", err)
	}

	return wf, nil
}

// Save stores a workflow, assigning an id and timestamps when missing. Active workflows
// must pass execution validation; drafts only need to be well formed.
func (w *Workflow) Save(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	const op = "save_workflow"

	if wf == nil {
		return nil, invalid(op, ErrWorkflowNil)
	}

	now := w.now().UTC()

	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}

	if wf.Status == "" {
		wf.Status = models.WorkflowStatusDraft
	}

	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}

	wf.UpdatedAt = now

	if err := w.validate.Struct(wf); err != nil {
		return nil, invalid(op, err)
	}

	if wf.IsActive() {
		if err := workflow.Validate(wf, w.types, registry.Kinds); err != nil {
			return nil, err
		}
	}

	if err := w.persistence.SaveWorkflow(ctx, wf); err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return wf, nil
}

// Activate validates a workflow and makes it executable by its triggers.
func (w *Workflow) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.IsActive() {
		return nil, conflict("activate_workflow", ErrCannotReactivate)
	}

	wf.Status = models.WorkflowStatusActive

	return w.Save(ctx, wf)
}

// Pause stops an active workflow from accepting new executions. Executions already
// queued fail when they start.
func (w *Workflow) Pause(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !wf.IsActive() {
		return nil, conflict("pause_workflow", ErrNotActive)
	}

	wf.Status = models.WorkflowStatusPaused

	return w.Save(ctx, wf)
}

// ExecutionDetail is an execution with its steps in visitation order.
type ExecutionDetail struct {
	*models.Execution

	Steps []*models.ExecutionStep `json:"steps"`
}

// Execution returns an execution and its ordered steps.
func (w *Workflow) Execution(ctx context.Context, id string) (*ExecutionDetail, error) {
	const op = "fetch_execution"

	execution, err := w.persistence.ExecutionByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			return nil, notFound(op, "execution not found", err)
		}

		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	steps, err := w.persistence.StepsByExecution(ctx, id)
	if err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return &ExecutionDetail{Execution: execution, Steps: steps}, nil
}

// Executions lists the most recent executions of a workflow. A zero limit means the
// default page size.
func (w *Workflow) Executions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	const op = "list_executions"

	if limit == 0 {
		limit = defaultExecutionLimit
	}

	if limit < 0 || limit > maxExecutionLimit {
		return nil, invalid(op, ErrInvalidLimit)
	}

	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return nil, err
	}

	executions, err := w.persistence.ExecutionsByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return executions, nil
}
