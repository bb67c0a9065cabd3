// Package memory is an in-process queue backend for tests and single-binary runs.
package memory

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/patrickmn/go-cache"
)

const defaultPollInterval = time.Second

type Queue struct {
	mu        sync.Mutex
	logger    *slog.Logger
	retention queue.Retention
	now       func() time.Time
	poll      time.Duration

	jobs     map[string]*queue.Job
	ready    readyHeap
	delayed  map[string]*queue.Job
	finished *cache.Cache
	order    map[queue.Status][]string
	sequence int64
	notify   chan struct{}
	closed   bool
}

type Option func(*Queue)

func WithRetention(r queue.Retention) Option {
	return func(q *Queue) { q.retention = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithPollInterval sets how often a blocked Dequeue rechecks delayed jobs.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.poll = d }
}

func New(logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		logger:    logger.With("module", "memory_queue"),
		retention: queue.DefaultRetention,
		now:       time.Now,
		poll:      defaultPollInterval,
		jobs:      make(map[string]*queue.Job),
		delayed:   make(map[string]*queue.Job),
		order:     make(map[queue.Status][]string),
		notify:    make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.finished = cache.New(q.retention.FailedAge, time.Minute)

	return q
}

func (q *Queue) Enqueue(_ context.Context, payload models.JobPayload, policy queue.Policy) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, queue.ErrClosed
	}

	if existing := q.lookup(payload.ExecutionID); existing != nil {
		return existing.Clone(), nil
	}

	q.sequence++

	job, err := queue.NewJob(payload, policy, q.sequence, q.now().UTC())
	if err != nil {
		return nil, err
	}

	q.jobs[job.ID] = job
	heap.Push(&q.ready, job)
	q.signal()

	q.logger.Debug("Job enqueued", "job_id", job.ID, "priority", payload.Priority)

	return job.Clone(), nil
}

func (q *Queue) Dequeue(ctx context.Context) (*queue.Job, error) {
	for {
		q.mu.Lock()

		if q.closed {
			q.mu.Unlock()

			return nil, queue.ErrClosed
		}

		now := q.now().UTC()
		wait := q.promote(now)

		for q.ready.Len() > 0 {
			job, _ := heap.Pop(&q.ready).(*queue.Job)

			// A stalled job may have finished after it was re-queued.
			if q.jobs[job.ID] != job || job.Status != queue.StatusWaiting {
				continue
			}

			job.Lease(now)
			clone := job.Clone()
			q.mu.Unlock()

			return clone, nil
		}

		q.mu.Unlock()

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *Queue) Complete(_ context.Context, job *queue.Job, summary queue.Summary) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return queue.ErrJobNotFound
	}

	stored.Summary = &summary
	stored.Finish(queue.StatusCompleted, q.now().UTC())
	q.retire(stored)

	*job = *stored.Clone()

	return nil
}

func (q *Queue) Fail(_ context.Context, job *queue.Job, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return false, queue.ErrJobNotFound
	}

	retrying := stored.Retry(cause, q.now().UTC())
	if retrying {
		q.delayed[stored.ID] = stored
		q.signal()
	} else {
		q.retire(stored)
	}

	*job = *stored.Clone()

	return retrying, nil
}

func (q *Queue) Get(_ context.Context, id string) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job := q.lookup(id); job != nil {
		return job.Clone(), nil
	}

	return nil, queue.ErrJobNotFound
}

func (q *Queue) Stats(_ context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats queue.Stats

	for _, job := range q.jobs {
		switch job.Status {
		case queue.StatusWaiting:
			stats.Waiting++
		case queue.StatusDelayed:
			stats.Delayed++
		case queue.StatusActive:
			stats.Active++
		}
	}

	for _, status := range []queue.Status{queue.StatusCompleted, queue.StatusFailed} {
		for _, id := range q.order[status] {
			if _, ok := q.finished.Get(id); ok {
				if status == queue.StatusCompleted {
					stats.Completed++
				} else {
					stats.Failed++
				}
			}
		}
	}

	return stats, nil
}

func (q *Queue) ReapStalled(_ context.Context, timeout time.Duration) ([]*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()

	var stalled []*queue.Job

	for _, job := range q.jobs {
		if job.Status != queue.StatusActive || job.LeasedAt == nil || now.Sub(*job.LeasedAt) < timeout {
			continue
		}

		if job.Stalls == 0 {
			job.Stalls++
			job.Status = queue.StatusWaiting
			job.LeasedAt = nil
			heap.Push(&q.ready, job)
			q.signal()
		} else {
			job.LastError = "job stalled more than once"
			job.Finish(queue.StatusFailed, now)
			q.retire(job)
		}

		stalled = append(stalled, job.Clone())
	}

	return stalled, nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.notify)
	}

	return nil
}

func (q *Queue) lookup(id string) *queue.Job {
	if job, ok := q.jobs[id]; ok {
		return job
	}

	if cached, ok := q.finished.Get(id); ok {
		job, _ := cached.(*queue.Job)

		return job
	}

	return nil
}

// promote moves due delayed jobs to the ready heap and returns how long Dequeue may
// sleep before the next one is due.
func (q *Queue) promote(now time.Time) time.Duration {
	wait := q.poll

	for id, job := range q.delayed {
		if !job.AvailableAt.After(now) {
			delete(q.delayed, id)
			job.Status = queue.StatusWaiting
			heap.Push(&q.ready, job)

			continue
		}

		wait = min(wait, job.AvailableAt.Sub(now))
	}

	return wait
}

// retire moves a finished job into the retention cache and trims the oldest beyond the
// count limit.
func (q *Queue) retire(job *queue.Job) {
	delete(q.jobs, job.ID)

	ttl, limit := q.retention.CompletedAge, q.retention.CompletedCount
	if job.Status == queue.StatusFailed {
		ttl, limit = q.retention.FailedAge, q.retention.FailedCount
	}

	q.finished.Set(job.ID, job, ttl)

	ids := append(q.order[job.Status], job.ID)
	for len(ids) > limit {
		q.finished.Delete(ids[0])
		ids = ids[1:]
	}

	q.order[job.Status] = ids
}

func (q *Queue) signal() {
	if q.closed {
		return
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// readyHeap orders jobs by priority, highest first, then by enqueue sequence.
type readyHeap []*queue.Job

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].Payload.Priority != h[j].Payload.Priority {
		return h[i].Payload.Priority > h[j].Payload.Priority
	}

	return h[i].Sequence < h[j].Sequence
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	job, _ := x.(*queue.Job)
	*h = append(*h, job)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return job
}
