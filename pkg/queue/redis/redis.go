// Package redis is the durable queue backend. Jobs are JSON documents; ready, delayed and
// active jobs are indexed by sorted sets so several workers can share one queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/queue"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix       = "flowforge:queue"
	defaultPollInterval = time.Second

	// priorityWeight keeps the sequence from overtaking one priority step.
	priorityWeight = 1e12
)

type Queue struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	prefix    string
	retention queue.Retention
	poll      time.Duration
	now       func() time.Time
	ownClient bool
}

type Option func(*Queue)

// WithPrefix namespaces every key, so several queues can share one database.
func WithPrefix(prefix string) Option {
	return func(q *Queue) { q.prefix = prefix }
}

func WithRetention(r queue.Retention) Option {
	return func(q *Queue) { q.retention = r }
}

func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.poll = d }
}

func New(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		client:    client,
		logger:    logger.With("module", "redis_queue"),
		prefix:    defaultPrefix,
		retention: queue.DefaultRetention,
		poll:      defaultPollInterval,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// NewFromURL connects to a redis:// URL and checks the connection.
func NewFromURL(ctx context.Context, url string, logger *slog.Logger, opts ...Option) (*Queue, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := New(client, logger, opts...)
	q.ownClient = true

	q.logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return q, nil
}

func (q *Queue) key(parts ...string) string {
	k := q.prefix
	for _, p := range parts {
		k += ":" + p
	}

	return k
}

func (q *Queue) jobKey(id string) string { return q.key("job", id) }

// enqueueScript indexes the job before writing its document, so a failed ZADD leaves
// nothing behind and a later Enqueue for the same execution can try again.
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

func readyScore(job *queue.Job) float64 {
	return -float64(job.Payload.Priority)*priorityWeight + float64(job.Sequence)
}

func (q *Queue) Enqueue(ctx context.Context, payload models.JobPayload, policy queue.Policy) (*queue.Job, error) {
	if existing, err := q.Get(ctx, payload.ExecutionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, queue.ErrJobNotFound) {
		return nil, err
	}

	sequence, err := q.client.Incr(ctx, q.key("sequence")).Result()
	if err != nil {
		return nil, storageError("enqueue", err)
	}

	job, err := queue.NewJob(payload, policy, sequence, q.now().UTC())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	created, err := enqueueScript.Run(ctx, q.client,
		[]string{q.jobKey(job.ID), q.key("ready")},
		data, strconv.FormatFloat(readyScore(job), 'f', -1, 64), job.ID,
	).Int()
	if err != nil {
		return nil, storageError("enqueue", err)
	}

	if created == 0 {
		return q.Get(ctx, job.ID)
	}

	q.logger.DebugContext(ctx, "Job enqueued", "job_id", job.ID, "priority", payload.Priority)

	return job, nil
}

func (q *Queue) Dequeue(ctx context.Context) (*queue.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := q.promote(ctx); err != nil {
			q.logger.ErrorContext(ctx, "Failed to promote delayed jobs", "error", err)
		}

		popped, err := q.client.BZPopMin(ctx, q.poll, q.key("ready")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, storageError("dequeue", err)
		}

		id, _ := popped.Member.(string)

		job, err := q.Get(ctx, id)
		if err != nil {
			if errors.Is(err, queue.ErrJobNotFound) {
				continue
			}

			return nil, err
		}

		if job.Status != queue.StatusWaiting {
			continue
		}

		now := q.now().UTC()
		job.Lease(now)

		pipe := q.client.TxPipeline()
		q.save(ctx, pipe, job, 0)
		pipe.ZAdd(ctx, q.key("active"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})

		if _, err := pipe.Exec(ctx); err != nil {
			return nil, storageError("dequeue", err)
		}

		return job, nil
	}
}

// promote moves due delayed jobs to the ready set. ZRem decides which caller wins when
// several workers promote at once.
func (q *Queue) promote(ctx context.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)

	ids, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{Min: "0", Max: now}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}

		if removed == 0 {
			continue
		}

		job, err := q.Get(ctx, id)
		if err != nil {
			continue
		}

		job.Status = queue.StatusWaiting

		pipe := q.client.TxPipeline()
		q.save(ctx, pipe, job, 0)
		pipe.ZAdd(ctx, q.key("ready"), redis.Z{Score: readyScore(job), Member: job.ID})

		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (q *Queue) Complete(ctx context.Context, job *queue.Job, summary queue.Summary) error {
	stored, err := q.Get(ctx, job.ID)
	if err != nil {
		return err
	}

	stored.Summary = &summary
	stored.Finish(queue.StatusCompleted, q.now().UTC())

	if err := q.retire(ctx, stored); err != nil {
		return err
	}

	*job = *stored

	return nil
}

func (q *Queue) Fail(ctx context.Context, job *queue.Job, cause error) (bool, error) {
	stored, err := q.Get(ctx, job.ID)
	if err != nil {
		return false, err
	}

	retrying := stored.Retry(cause, q.now().UTC())

	if retrying {
		pipe := q.client.TxPipeline()
		q.save(ctx, pipe, stored, 0)
		pipe.ZRem(ctx, q.key("active"), stored.ID)
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(stored.AvailableAt.UnixMilli()), Member: stored.ID})

		if _, err := pipe.Exec(ctx); err != nil {
			return false, storageError("fail", err)
		}
	} else if err := q.retire(ctx, stored); err != nil {
		return false, err
	}

	*job = *stored

	return retrying, nil
}

// retire stores a finished job with its retention TTL and trims the finished list.
func (q *Queue) retire(ctx context.Context, job *queue.Job) error {
	ttl, limit := q.retention.CompletedAge, q.retention.CompletedCount
	if job.Status == queue.StatusFailed {
		ttl, limit = q.retention.FailedAge, q.retention.FailedCount
	}

	list := q.key(string(job.Status))

	pipe := q.client.TxPipeline()
	q.save(ctx, pipe, job, ttl)
	pipe.ZRem(ctx, q.key("active"), job.ID)
	pipe.LPush(ctx, list, job.ID)
	overflow := pipe.LRange(ctx, list, int64(limit), -1)
	pipe.LTrim(ctx, list, 0, int64(limit-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return storageError("finish", err)
	}

	if ids := overflow.Val(); len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = q.jobKey(id)
		}

		if err := q.client.Del(ctx, keys...).Err(); err != nil {
			q.logger.WarnContext(ctx, "Failed to drop trimmed jobs", "error", err)
		}
	}

	return nil
}

func (q *Queue) save(ctx context.Context, pipe redis.Pipeliner, job *queue.Job, ttl time.Duration) {
	data, _ := json.Marshal(job)
	pipe.Set(ctx, q.jobKey(job.ID), data, ttl)
}

func (q *Queue) Get(ctx context.Context, id string) (*queue.Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrJobNotFound
		}

		return nil, storageError("get", err)
	}

	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return &job, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, q.key("ready"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.ZCard(ctx, q.key("active"))
	completed := pipe.LLen(ctx, q.key(string(queue.StatusCompleted)))
	failed := pipe.LLen(ctx, q.key(string(queue.StatusFailed)))

	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, storageError("stats", err)
	}

	return queue.Stats{
		Waiting:   ready.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (q *Queue) ReapStalled(ctx context.Context, timeout time.Duration) ([]*queue.Job, error) {
	now := q.now().UTC()
	cutoff := strconv.FormatInt(now.Add(-timeout).UnixMilli(), 10)

	ids, err := q.client.ZRangeByScore(ctx, q.key("active"), &redis.ZRangeBy{Min: "0", Max: cutoff}).Result()
	if err != nil {
		return nil, storageError("reap", err)
	}

	var stalled []*queue.Job

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.key("active"), id).Result()
		if err != nil {
			return stalled, storageError("reap", err)
		}

		if removed == 0 {
			continue
		}

		job, err := q.Get(ctx, id)
		if err != nil {
			continue
		}

		if job.Stalls > 0 {
			job.LastError = "job stalled more than once"
			job.Finish(queue.StatusFailed, now)

			if err := q.retire(ctx, job); err != nil {
				return stalled, err
			}
		} else {
			job.Stalls++
			job.Status = queue.StatusWaiting
			job.LeasedAt = nil

			pipe := q.client.TxPipeline()
			q.save(ctx, pipe, job, 0)
			pipe.ZAdd(ctx, q.key("ready"), redis.Z{Score: readyScore(job), Member: job.ID})

			if _, err := pipe.Exec(ctx); err != nil {
				return stalled, storageError("reap", err)
			}
		}

		stalled = append(stalled, job)
	}

	return stalled, nil
}

func (q *Queue) Close() error {
	if q.ownClient {
		return q.client.Close()
	}

	return nil
}

func storageError(op string, err error) error {
	return failures.Wrap(failures.KindTransient, "redis queue "+op, err)
}
