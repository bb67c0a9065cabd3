// Package queue defines the durable job queue that feeds workflow executions to workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrClosed      = errors.New("queue closed")
	ErrJobNotFound = errors.New("job not found")
)

// Policy controls how a job is retried.
type Policy struct {
	Attempts int           `json:"attempts"`
	Backoff  time.Duration `json:"backoff"`
}

var (
	// DefaultPolicy applies to manual and cron runs.
	DefaultPolicy = Policy{Attempts: 3, Backoff: time.Second}
	// WebhookPolicy runs webhook jobs once; the caller already received its response.
	WebhookPolicy = Policy{Attempts: 1, Backoff: time.Second}
)

// Retention bounds how long and how many finished jobs are kept.
type Retention struct {
	CompletedAge   time.Duration
	CompletedCount int
	FailedAge      time.Duration
	FailedCount    int
}

var DefaultRetention = Retention{
	CompletedAge:   time.Hour,
	CompletedCount: 1000,
	FailedAge:      7 * 24 * time.Hour,
	FailedCount:    5000,
}

// Summary is what a successful job reports.
type Summary struct {
	StepsCompleted int   `json:"steps_completed"`
	DurationMs     int64 `json:"duration_ms"`
}

// Job is one queued execution. Its id is the execution id.
type Job struct {
	ID          string            `json:"id"`
	Payload     models.JobPayload `json:"payload"`
	Status      Status            `json:"status"`
	Policy      Policy            `json:"policy"`
	Attempts    int               `json:"attempts"`
	Stalls      int               `json:"stalls"`
	Sequence    int64             `json:"sequence"`
	LastError   string            `json:"last_error,omitempty"`
	Summary     *Summary          `json:"summary,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	AvailableAt time.Time         `json:"available_at"`
	LeasedAt    *time.Time        `json:"leased_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// Stats counts jobs per state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is a priority job queue with delayed retries. Enqueue is idempotent on the
// execution id: a second call returns the job created by the first.
type Queue interface {
	Enqueue(ctx context.Context, payload models.JobPayload, policy Policy) (*Job, error)
	// Dequeue blocks until a job is ready or ctx ends, and leases it to the caller
	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job, summary Summary) error
	// Fail reports whether the job was scheduled for another attempt
	Fail(ctx context.Context, job *Job, cause error) (bool, error)
	Get(ctx context.Context, id string) (*Job, error)
	Stats(ctx context.Context) (Stats, error)
	// ReapStalled re-queues jobs leased longer than timeout. A job that stalls twice fails.
	ReapStalled(ctx context.Context, timeout time.Duration) ([]*Job, error)
	Close() error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewJob validates payload and builds a waiting job.
func NewJob(payload models.JobPayload, policy Policy, sequence int64, now time.Time) (*Job, error) {
	if err := validate.Struct(payload); err != nil {
		return nil, &failures.Error{Kind: failures.KindValidation, Op: "enqueue", Message: "invalid job payload", Err: err}
	}

	if policy.Attempts <= 0 {
		policy.Attempts = DefaultPolicy.Attempts
	}

	if policy.Backoff <= 0 {
		policy.Backoff = DefaultPolicy.Backoff
	}

	return &Job{
		ID:          payload.ExecutionID,
		Payload:     payload,
		Status:      StatusWaiting,
		Policy:      policy,
		Sequence:    sequence,
		CreatedAt:   now,
		AvailableAt: now,
	}, nil
}

// Clone returns a copy safe to hand out of a backend.
func (j *Job) Clone() *Job {
	clone := *j
	if j.Summary != nil {
		summary := *j.Summary
		clone.Summary = &summary
	}

	return &clone
}

// Lease marks the job active for a new attempt.
func (j *Job) Lease(now time.Time) {
	j.Status = StatusActive
	j.Attempts++
	j.LeasedAt = &now
}

// Finish moves the job to a terminal status.
func (j *Job) Finish(status Status, now time.Time) {
	j.Status = status
	j.FinishedAt = &now
	j.LeasedAt = nil
}

// Retry decides the job's fate after a failed attempt. It returns true and schedules the
// job when another attempt is allowed; otherwise the job is marked failed.
func (j *Job) Retry(cause error, now time.Time) bool {
	if cause != nil {
		j.LastError = cause.Error()
	}

	if !ShouldRetry(cause, j.Attempts, j.Policy.Attempts) {
		j.Finish(StatusFailed, now)

		return false
	}

	j.Status = StatusDelayed
	j.LeasedAt = nil
	j.AvailableAt = now.Add(Delay(j.Policy, j.Attempts))

	return true
}
