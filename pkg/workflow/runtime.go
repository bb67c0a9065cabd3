// Package workflow executes workflow graphs: it walks nodes from the triggers, resolves
// placeholders, dispatches to node adapters and records every step.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/classifier"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/otelhelper"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxLoopIterations caps loop nodes unless Options overrides it.
const DefaultMaxLoopIterations = 100

// Store is the persistence the runtime reads and writes.
type Store interface {
	persistence.WorkflowRepository
	persistence.ExecutionRepository
	persistence.StepRepository
	persistence.IntegrationRepository
}

type Options struct {
	MaxLoopIterations int
	Tracer            trace.Tracer
}

type Runtime struct {
	logger            *slog.Logger
	store             Store
	registry          *registry.Registry
	decrypter         Decrypter
	tracer            trace.Tracer
	maxLoopIterations int
	now               func() time.Time
}

func NewRuntime(logger *slog.Logger, store Store, reg *registry.Registry, decrypter Decrypter, opts Options) *Runtime {
	if opts.MaxLoopIterations <= 0 {
		opts.MaxLoopIterations = DefaultMaxLoopIterations
	}

	if opts.Tracer == nil {
		opts.Tracer = otelhelper.NoopTracer()
	}

	return &Runtime{
		logger:            logger.With("module", "workflow_runtime"),
		store:             store,
		registry:          reg,
		decrypter:         decrypter,
		tracer:            opts.Tracer,
		maxLoopIterations: opts.MaxLoopIterations,
		now:               time.Now,
	}
}

// ExecutionContext is the outcome of one Execute call. Results maps node id to the
// adapter output.
type ExecutionContext struct {
	ExecutionID    string
	WorkflowID     string
	UserID         string
	TriggerData    map[string]any
	Results        map[string]any
	Status         models.ExecutionStatus
	StepsCompleted int
	DurationMs     int64
}

// Execute runs an execution that was created by the dispatcher. A terminal execution is
// left untouched and reported as is, so redelivered jobs are harmless.
//
// A retryable failure leaves the execution running and is returned so the queue retries
// the job. Any other failure marks the execution failed and is returned as well. When ctx
// is cancelled the execution is left running for the stall reaper.
func (r *Runtime) Execute(ctx context.Context, workflowID, executionID string, triggerData map[string]any, userID string) (*ExecutionContext, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	logger := log.WithExecution(r.logger, workflowID, executionID)

	execCtx, err := r.execute(ctx, logger, workflowID, executionID, triggerData, userID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return execCtx, err
}

func (r *Runtime) execute(ctx context.Context, logger *slog.Logger, workflowID, executionID string, triggerData map[string]any, userID string) (*ExecutionContext, error) {
	execution, err := r.store.ExecutionByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			return nil, &failures.Error{Kind: failures.KindFatal, Op: "execute", Message: "execution " + executionID + " not found", Err: err}
		}

		return nil, failures.Wrap(failures.KindTransient, "load execution", err)
	}

	execCtx := &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		UserID:      userID,
		TriggerData: triggerData,
		Results:     make(map[string]any),
		Status:      execution.Status,
		DurationMs:  execution.DurationMs,
	}

	if execution.Status.IsTerminal() {
		logger.InfoContext(ctx, "Execution already finished, skipping", "status", execution.Status)

		return execCtx, nil
	}

	wf, err := r.store.WorkflowByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return r.fail(ctx, logger, execution, execCtx,
				&failures.Error{Kind: failures.KindFatal, Op: "execute", Message: "workflow " + workflowID + " not found", Err: err})
		}

		return nil, failures.Wrap(failures.KindTransient, "load workflow", err)
	}

	if !wf.IsActive() {
		return r.fail(ctx, logger, execution, execCtx,
			&failures.Error{Kind: failures.KindFatal, Op: "execute", Message: ErrWorkflowNotActive.Error(), Err: ErrWorkflowNotActive})
	}

	start := r.now().UTC()
	if execution.StartedAt == nil {
		execution.StartedAt = &start
	}

	execution.Status = models.ExecutionStatusRunning
	execution.Error = nil
	execution.ErrorDetail = nil

	if err := r.store.UpdateExecution(ctx, execution); err != nil {
		if errors.Is(err, persistence.ErrExecutionFinalized) {
			logger.InfoContext(ctx, "Execution finished concurrently, skipping")

			return execCtx, nil
		}

		return nil, failures.Wrap(failures.KindTransient, "start execution", err)
	}

	execCtx.Status = models.ExecutionStatusRunning

	lastOrder, err := r.store.MaxStepOrder(ctx, executionID)
	if err != nil {
		return nil, failures.Wrap(failures.KindTransient, "load step order", err)
	}

	logger.InfoContext(ctx, "Starting execution", "nodes", len(wf.Nodes), "step_order", lastOrder)

	w := newWalker(r, wf, execution, triggerData, userID, lastOrder, logger)
	w.run(ctx)

	execCtx.Results = w.results
	execCtx.StepsCompleted = w.completed

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.WarnContext(ctx, "Execution interrupted", "error", ctxErr)

		return execCtx, ctxErr
	}

	if w.abortErr != nil {
		if failures.IsRetryable(w.abortErr) {
			logger.WarnContext(ctx, "Execution stopped by a retryable failure", "error", w.abortErr)

			return execCtx, w.abortErr
		}

		return r.fail(ctx, logger, execution, execCtx, w.abortErr)
	}

	now := r.now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.DurationMs = now.Sub(*execution.StartedAt).Milliseconds()

	if err := r.store.UpdateExecution(ctx, execution); err != nil && !errors.Is(err, persistence.ErrExecutionFinalized) {
		return execCtx, failures.Wrap(failures.KindTransient, "complete execution", err)
	}

	execCtx.Status = models.ExecutionStatusCompleted
	execCtx.DurationMs = execution.DurationMs

	logger.InfoContext(ctx, "Execution completed", "steps_completed", w.completed, "duration_ms", execution.DurationMs)

	return execCtx, nil
}

// Abandon marks an execution failed after its job exhausted all attempts. Executions that
// already finished are left alone.
func (r *Runtime) Abandon(ctx context.Context, executionID string, cause error) error {
	execution, err := r.store.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return nil
	}

	return r.markFailed(ctx, execution, cause)
}

func (r *Runtime) fail(ctx context.Context, logger *slog.Logger, execution *models.Execution, execCtx *ExecutionContext, cause error) (*ExecutionContext, error) {
	logger.ErrorContext(ctx, "Execution failed", "error", cause)

	if err := r.markFailed(ctx, execution, cause); err != nil {
		logger.ErrorContext(ctx, "Failed to record execution failure", "error", err)
	}

	execCtx.Status = models.ExecutionStatusFailed
	execCtx.DurationMs = execution.DurationMs

	return execCtx, cause
}

func (r *Runtime) markFailed(ctx context.Context, execution *models.Execution, cause error) error {
	now := r.now().UTC()
	message := cause.Error()

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.Error = &message
	execution.ErrorDetail = errorDetail(message)

	if execution.StartedAt != nil {
		execution.DurationMs = now.Sub(*execution.StartedAt).Milliseconds()
	}

	err := r.store.UpdateExecution(context.WithoutCancel(ctx), execution)
	if err != nil && !errors.Is(err, persistence.ErrExecutionFinalized) {
		return err
	}

	return nil
}

func errorDetail(message string) *models.ErrorDetail {
	c := classifier.Classify(message)

	return &models.ErrorDetail{
		Category:    string(c.Category),
		Message:     c.Message,
		Action:      c.Action,
		Severity:    string(c.Severity),
		Recoverable: c.Recoverable,
	}
}
