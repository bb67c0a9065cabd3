// Package queuetest holds the behavior every queue backend must share.
package queuetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Payload builds a valid job payload.
func Payload(executionID string, priority int) models.JobPayload {
	return models.JobPayload{
		WorkflowID:  "wf-1",
		ExecutionID: executionID,
		TriggerData: map[string]any{"n": float64(priority)},
		TriggeredBy: models.TriggerSourceManual,
		UserID:      "user-1",
		Priority:    priority,
	}
}

// Run exercises a backend. newQueue must return an empty queue owned by the subtest.
func Run(t *testing.T, newQueue func(t *testing.T) queue.Queue) {
	t.Helper()

	t.Run("enqueue is idempotent", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		first, err := q.Enqueue(ctx, Payload("exec-1", 0), queue.DefaultPolicy)
		require.NoError(t, err)

		second, err := q.Enqueue(ctx, Payload("exec-1", 5), queue.WebhookPolicy)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Sequence, second.Sequence)
		assert.Equal(t, queue.DefaultPolicy, second.Policy)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Waiting)
	})

	t.Run("invalid payload is rejected", func(t *testing.T) {
		q := newQueue(t)

		_, err := q.Enqueue(context.Background(), models.JobPayload{ExecutionID: "x"}, queue.DefaultPolicy)
		require.Error(t, err)
		assert.Equal(t, failures.KindValidation, failures.KindOf(err))
	})

	t.Run("higher priority first then fifo", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		for _, p := range []struct {
			id       string
			priority int
		}{{"low-1", 0}, {"high", 10}, {"low-2", 0}} {
			_, err := q.Enqueue(ctx, Payload(p.id, p.priority), queue.DefaultPolicy)
			require.NoError(t, err)
		}

		var got []string

		for range 3 {
			job := dequeue(t, q)
			got = append(got, job.ID)
		}

		assert.Equal(t, []string{"high", "low-1", "low-2"}, got)
	})

	t.Run("complete records summary", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Enqueue(ctx, Payload("exec-done", 0), queue.DefaultPolicy)
		require.NoError(t, err)

		job := dequeue(t, q)
		assert.Equal(t, queue.StatusActive, job.Status)
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, float64(0), job.Payload.TriggerData["n"])

		require.NoError(t, q.Complete(ctx, job, queue.Summary{StepsCompleted: 3, DurationMs: 12}))

		stored, err := q.Get(ctx, "exec-done")
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, stored.Status)
		require.NotNil(t, stored.Summary)
		assert.Equal(t, 3, stored.Summary.StepsCompleted)

		again, err := q.Enqueue(ctx, Payload("exec-done", 0), queue.DefaultPolicy)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, again.Status)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Completed)
		assert.Equal(t, int64(0), stats.Waiting)
	})

	t.Run("transient failures retry until attempts run out", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Enqueue(ctx, Payload("exec-retry", 0), queue.Policy{Attempts: 2, Backoff: 20 * time.Millisecond})
		require.NoError(t, err)

		cause := failures.New(failures.KindTransient, "http", "HTTP 503")

		job := dequeue(t, q)
		retrying, err := q.Fail(ctx, job, cause)
		require.NoError(t, err)
		assert.True(t, retrying)

		stored, err := q.Get(ctx, "exec-retry")
		require.NoError(t, err)
		assert.Equal(t, queue.StatusDelayed, stored.Status)

		job = dequeue(t, q)
		assert.Equal(t, 2, job.Attempts)

		retrying, err = q.Fail(ctx, job, cause)
		require.NoError(t, err)
		assert.False(t, retrying)

		stored, err = q.Get(ctx, "exec-retry")
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, stored.Status)
		assert.Equal(t, "http: HTTP 503", stored.LastError)
	})

	t.Run("fatal failures are not retried", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Enqueue(ctx, Payload("exec-fatal", 0), queue.DefaultPolicy)
		require.NoError(t, err)

		job := dequeue(t, q)
		retrying, err := q.Fail(ctx, job, failures.New(failures.KindFatal, "http", "HTTP 404"))
		require.NoError(t, err)
		assert.False(t, retrying)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("dequeue honours context", func(t *testing.T) {
		q := newQueue(t)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))
	})

	t.Run("stalled jobs are requeued once", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Enqueue(ctx, Payload("exec-stall", 0), queue.DefaultPolicy)
		require.NoError(t, err)

		dequeue(t, q)

		stalled, err := q.ReapStalled(ctx, 0)
		require.NoError(t, err)
		require.Len(t, stalled, 1)
		assert.Equal(t, queue.StatusWaiting, stalled[0].Status)

		job := dequeue(t, q)
		assert.Equal(t, "exec-stall", job.ID)
		assert.Equal(t, 1, job.Stalls)

		stalled, err = q.ReapStalled(ctx, 0)
		require.NoError(t, err)
		require.Len(t, stalled, 1)
		assert.Equal(t, queue.StatusFailed, stalled[0].Status)
	})
}

func dequeue(t *testing.T, q queue.Queue) *queue.Job {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	return job
}
