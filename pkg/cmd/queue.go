package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/flowforge/flowforge/pkg/queue/memory"
	"github.com/flowforge/flowforge/pkg/queue/redis"
)

// NewQueue opens the job queue named by queueURL's scheme. The memory queue only reaches
// workers in the same process.
func NewQueue(ctx context.Context, logger *slog.Logger, queueURL, prefix string) (queue.Queue, error) {
	switch provider := parsePersistenceProvider(queueURL); provider {
	case "memory", "":
		logger.WarnContext(ctx, "Using in-memory job queue; jobs are lost on restart and not shared between processes")

		return memory.New(logger), nil
	case "redis", "rediss":
		return redis.NewFromURL(ctx, queueURL, logger, redis.WithPrefix(prefix))
	default:
		return nil, fmt.Errorf("unsupported queue url scheme %q, expected memory or redis", provider)
	}
}
