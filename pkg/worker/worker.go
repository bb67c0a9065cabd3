// Package worker pulls jobs from the queue and runs them through the execution runtime.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/flowforge/flowforge/pkg/workflow"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency  = 5
	DefaultRateLimit    = 10
	DefaultStallTimeout = 10 * time.Minute
	DefaultReapInterval = 30 * time.Second

	dequeueRetryDelay = time.Second
)

// ErrJobStalled is recorded on executions whose job stalled twice.
var ErrJobStalled = errors.New("job stalled: worker stopped responding")

// Executor runs one execution. *workflow.Runtime satisfies it.
type Executor interface {
	Execute(ctx context.Context, workflowID, executionID string, triggerData map[string]any, userID string) (*workflow.ExecutionContext, error)
	Abandon(ctx context.Context, executionID string, cause error) error
}

type Config struct {
	ID           string
	Concurrency  int
	RateLimit    float64 // jobs started per second across the pool
	StallTimeout time.Duration
	ReapInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}

	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}

	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}

	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}

	return c
}

type Pool struct {
	config    Config
	logger    *slog.Logger
	queue     queue.Queue
	executor  Executor
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
}

type Option func(*Pool)

// WithPublisher emits job lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Pool) { p.publisher = publisher }
}

// WithMetrics records queue depth on every reaper pass.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func New(logger *slog.Logger, q queue.Queue, executor Executor, config Config, opts ...Option) *Pool {
	config = config.withDefaults()

	p := &Pool{
		config:   config,
		logger:   logger.With("module", "worker", "worker_id", config.ID),
		queue:    q,
		executor: executor,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), max(1, int(config.RateLimit))),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run processes jobs until ctx is cancelled or the queue is closed. In-flight jobs are
// interrupted by the cancellation and left leased for the reaper.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Starting worker pool",
		"concurrency", p.config.Concurrency,
		"rate_limit", p.config.RateLimit,
		"stall_timeout", p.config.StallTimeout,
	)

	var wg sync.WaitGroup

	for slot := range p.config.Concurrency {
		wg.Add(1)

		go func() {
			defer wg.Done()
			p.loop(ctx, slot)
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		p.reapLoop(ctx)
	}()

	wg.Wait()

	p.logger.InfoContext(ctx, "Worker pool stopped")

	return nil
}

func (p *Pool) loop(ctx context.Context, slot int) {
	logger := p.logger.With("slot", slot)

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}

			logger.ErrorContext(ctx, "Failed to dequeue job", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}

			continue
		}

		p.Process(ctx, job)
	}
}

// Process runs one leased job and reports the outcome to the queue.
func (p *Pool) Process(ctx context.Context, job *queue.Job) {
	payload := job.Payload
	logger := log.WithExecution(p.logger, payload.WorkflowID, payload.ExecutionID).With(
		"job_id", job.ID,
		"attempt", job.Attempts,
	)

	logger.InfoContext(ctx, "Processing job")
	p.publish(ctx, job, events.JobActive{
		BaseEvent:   p.baseEvent(events.JobActiveEvent, payload.WorkflowID),
		ExecutionID: payload.ExecutionID,
		Attempt:     job.Attempts,
	})

	result, err := p.execute(ctx, job)
	if err == nil {
		summary := queue.Summary{StepsCompleted: result.StepsCompleted, DurationMs: result.DurationMs}

		if err := p.queue.Complete(context.WithoutCancel(ctx), job, summary); err != nil {
			logger.ErrorContext(ctx, "Failed to complete job", "error", err)

			return
		}

		logger.InfoContext(ctx, "Job completed", "steps_completed", summary.StepsCompleted, "duration_ms", summary.DurationMs)
		p.publish(ctx, job, events.JobCompleted{
			BaseEvent:      p.baseEvent(events.JobCompletedEvent, payload.WorkflowID),
			ExecutionID:    payload.ExecutionID,
			Attempt:        job.Attempts,
			StepsCompleted: summary.StepsCompleted,
			DurationMs:     summary.DurationMs,
		})

		return
	}

	if ctx.Err() != nil {
		logger.WarnContext(ctx, "Job interrupted by shutdown", "error", err)

		return
	}

	retrying, ferr := p.queue.Fail(ctx, job, err)
	if ferr != nil {
		logger.ErrorContext(ctx, "Failed to record job failure", "error", ferr, "cause", err)

		return
	}

	if retrying {
		logger.WarnContext(ctx, "Job failed, retry scheduled", "error", err, "available_at", job.AvailableAt)
	} else {
		logger.ErrorContext(ctx, "Job failed", "error", err)

		if aerr := p.executor.Abandon(ctx, payload.ExecutionID, err); aerr != nil {
			logger.ErrorContext(ctx, "Failed to mark execution failed", "error", aerr)
		}
	}

	p.publish(ctx, job, events.JobFailed{
		BaseEvent:   p.baseEvent(events.JobFailedEvent, payload.WorkflowID),
		ExecutionID: payload.ExecutionID,
		Attempt:     job.Attempts,
		Error:       err.Error(),
		Retrying:    retrying,
	})
}

// execute shields the pool from adapter panics.
func (p *Pool) execute(ctx context.Context, job *queue.Job) (result *workflow.ExecutionContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failures.Newf(failures.KindFatal, "execute", "panic: %v", r)
		}
	}()

	payload := job.Payload

	result, err = p.executor.Execute(ctx, payload.WorkflowID, payload.ExecutionID, payload.TriggerData, payload.UserID)
	if err == nil && result == nil {
		err = fmt.Errorf("execution %s returned no result", payload.ExecutionID)
	}

	return result, err
}

func (p *Pool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Reap(ctx)
		}
	}
}

// Reap re-queues stalled jobs, fails the ones that stalled twice and records queue depth.
func (p *Pool) Reap(ctx context.Context) {
	stalled, err := p.queue.ReapStalled(ctx, p.config.StallTimeout)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to reap stalled jobs", "error", err)
	}

	for _, job := range stalled {
		requeued := job.Status != queue.StatusFailed
		p.logger.WarnContext(ctx, "Job stalled", "job_id", job.ID, "requeued", requeued)

		if !requeued {
			if err := p.executor.Abandon(ctx, job.Payload.ExecutionID, ErrJobStalled); err != nil {
				p.logger.ErrorContext(ctx, "Failed to mark execution failed", "job_id", job.ID, "error", err)
			}
		}

		p.publish(ctx, job, events.JobStalled{
			BaseEvent:   p.baseEvent(events.JobStalledEvent, job.Payload.WorkflowID),
			ExecutionID: job.Payload.ExecutionID,
			Requeued:    requeued,
		})
	}

	if p.metrics != nil {
		stats, err := p.queue.Stats(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to read queue stats", "error", err)

			return
		}

		p.metrics.RecordQueue(stats)
	}
}

func (p *Pool) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = p.config.ID

	return base
}

func (p *Pool) publish(ctx context.Context, job *queue.Job, event eventbus.Event) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.Publish(context.WithoutCancel(ctx), job.ID, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish job event", "event_type", event.GetType(), "error", err)
	}
}
