package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DispatchStore is the persistence a Dispatcher needs.
type DispatchStore interface {
	persistence.WorkflowRepository
	persistence.ExecutionRepository
}

// TriggerRequest asks for one execution of a workflow.
type TriggerRequest struct {
	WorkflowID  string               `validate:"required"`
	TriggeredBy models.TriggerSource `validate:"required,oneof=manual webhook cron event"`
	TriggerID   string
	TriggerData map[string]any
	// ActorID is the user behind the call, when one is known. It must own the workflow.
	ActorID  string
	Priority int `validate:"gte=0"`
}

// Dispatcher turns trigger requests into pending executions on the queue. It is the only
// way executions are created.
type Dispatcher struct {
	logger    *slog.Logger
	store     DispatchStore
	queue     queue.Queue
	types     workflow.TypeRegistry
	publisher eventbus.EventPublisher
	validate  *validator.Validate
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithEventPublisher emits an ExecutionQueued event for every enqueued execution.
func WithEventPublisher(publisher eventbus.EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = publisher }
}

func NewDispatcher(logger *slog.Logger, store DispatchStore, q queue.Queue, types workflow.TypeRegistry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:   logger.With("module", "dispatcher"),
		store:    store,
		queue:    q,
		types:    types,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// ValidateWorkflow reports whether wf may be enqueued.
func (d *Dispatcher) ValidateWorkflow(wf *models.Workflow) error {
	return workflow.Validate(wf, d.types, registry.Kinds)
}

// PolicyFor returns the retry policy of the lane a trigger source runs in. Webhook
// callers are answered before the run finishes and get a single attempt.
func PolicyFor(source models.TriggerSource) queue.Policy {
	if source == models.TriggerSourceWebhook {
		return queue.WebhookPolicy
	}

	return queue.DefaultPolicy
}

// Trigger validates the workflow, records a pending execution and enqueues it.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (*models.Execution, error) {
	const op = "trigger"

	if err := d.validate.Struct(req); err != nil {
		return nil, &failures.Error{Kind: failures.KindValidation, Op: op, Message: "invalid trigger request", Status: http.StatusBadRequest, Err: err}
	}

	logger := d.logger.With("workflow_id", req.WorkflowID, "triggered_by", req.TriggeredBy)

	wf, err := d.store.WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, &failures.Error{Kind: failures.KindValidation, Op: op, Message: "workflow not found", Status: http.StatusNotFound, Err: err}
		}

		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	if req.ActorID != "" && req.ActorID != wf.UserID {
		return nil, failures.Auth(http.StatusForbidden, "API key does not belong to the workflow owner")
	}

	if err := d.ValidateWorkflow(wf); err != nil {
		logger.WarnContext(ctx, "Workflow failed validation, not enqueueing", "error", err)

		return nil, err
	}

	triggerData := req.TriggerData
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  wf.ID,
		UserID:      wf.UserID,
		TriggeredBy: req.TriggeredBy,
		TriggerID:   req.TriggerID,
		TriggerData: triggerData,
		Status:      models.ExecutionStatusPending,
		CreatedAt:   d.now().UTC(),
	}

	if err := d.store.CreateExecution(ctx, execution); err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	payload := models.JobPayload{
		WorkflowID:  wf.ID,
		ExecutionID: execution.ID,
		TriggerData: triggerData,
		TriggeredBy: req.TriggeredBy,
		TriggerID:   req.TriggerID,
		UserID:      wf.UserID,
		Priority:    req.Priority,
	}

	if _, err := d.queue.Enqueue(ctx, payload, PolicyFor(req.TriggeredBy)); err != nil {
		logger.ErrorContext(ctx, "Failed to enqueue execution", "execution_id", execution.ID, "error", err)
		d.abandon(ctx, execution, err)

		if failures.KindOf(err) != "" {
			return nil, err
		}

		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	logger.InfoContext(ctx, "Execution enqueued", "execution_id", execution.ID)

	if d.publisher != nil {
		event := events.ExecutionQueued{
			BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, wf.ID),
			ExecutionID: execution.ID,
			TriggeredBy: string(req.TriggeredBy),
			TriggerID:   req.TriggerID,
		}

		if err := d.publisher.Publish(context.WithoutCancel(ctx), execution.ID, event); err != nil {
			logger.WarnContext(ctx, "Failed to publish execution queued event", "execution_id", execution.ID, "error", err)
		}
	}

	return execution, nil
}

// abandon fails an execution whose job never reached the queue, so it does not stay
// pending forever.
func (d *Dispatcher) abandon(ctx context.Context, execution *models.Execution, cause error) {
	now := d.now().UTC()
	msg := "failed to enqueue execution: " + cause.Error()

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.Error = &msg

	if err := d.store.UpdateExecution(context.WithoutCancel(ctx), execution); err != nil {
		d.logger.ErrorContext(ctx, "Failed to mark execution failed", "execution_id", execution.ID, "error", err)
	}
}
