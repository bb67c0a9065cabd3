package queue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	t.Parallel()

	policy := queue.Policy{Attempts: 5, Backoff: time.Second}

	assert.Equal(t, time.Second, queue.Delay(policy, 1))
	assert.Equal(t, 2*time.Second, queue.Delay(policy, 2))
	assert.Equal(t, 4*time.Second, queue.Delay(policy, 3))
	assert.Equal(t, time.Hour, queue.Delay(policy, 40))
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	transient := failures.New(failures.KindTransient, "http", "HTTP 503")
	fatal := failures.New(failures.KindFatal, "http", "HTTP 404")

	tests := []struct {
		name     string
		err      error
		attempts int
		want     bool
	}{
		{"transient first attempt", transient, 1, true},
		{"transient last attempt", transient, 3, false},
		{"fatal", fatal, 1, false},
		{"configuration", failures.New(failures.KindConfiguration, "slack", "no slack integration connected"), 1, false},
		{"untyped timeout", errors.New("request timed out"), 1, true},
		{"untyped unknown", errors.New("boom"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, queue.ShouldRetry(tt.err, tt.attempts, 3))
		})
	}
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	now := time.Now()

	_, err := queue.NewJob(models.JobPayload{WorkflowID: "wf"}, queue.DefaultPolicy, 1, now)
	require.Error(t, err)
	assert.Equal(t, failures.KindValidation, failures.KindOf(err))

	job, err := queue.NewJob(models.JobPayload{
		WorkflowID:  "wf",
		ExecutionID: "exec",
		UserID:      "user",
		TriggeredBy: models.TriggerSourceManual,
	}, queue.Policy{}, 7, now)
	require.NoError(t, err)
	assert.Equal(t, "exec", job.ID)
	assert.Equal(t, queue.StatusWaiting, job.Status)
	assert.Equal(t, queue.DefaultPolicy, job.Policy)
	assert.Equal(t, int64(7), job.Sequence)
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &queue.Job{Policy: queue.DefaultPolicy}

	job.Lease(now)
	assert.True(t, job.Retry(failures.New(failures.KindTransient, "http", "HTTP 502"), now))
	assert.Equal(t, queue.StatusDelayed, job.Status)
	assert.Equal(t, now.Add(time.Second), job.AvailableAt)
	assert.Equal(t, "http: HTTP 502", job.LastError)

	job.Lease(now)
	assert.True(t, job.Retry(errors.New("connection refused"), now))
	assert.Equal(t, now.Add(2*time.Second), job.AvailableAt)

	job.Lease(now)
	assert.False(t, job.Retry(errors.New("connection refused"), now))
	assert.Equal(t, queue.StatusFailed, job.Status)
	assert.NotNil(t, job.FinishedAt)
}
