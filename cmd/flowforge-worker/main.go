package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/worker"
	"github.com/flowforge/flowforge/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultMetricsPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "flowforge-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute queued workflow runs",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "Jobs processed in parallel",
				Value:   worker.DefaultConcurrency,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.FloatFlag{
				Name:    "rate-limit",
				Usage:   "Jobs started per second across the pool",
				Value:   worker.DefaultRateLimit,
				Sources: cli.EnvVars("WORKER_RATE_LIMIT"),
			},
			&cli.DurationFlag{
				Name:    "stall-timeout",
				Usage:   "Lease age after which an active job is considered stalled",
				Value:   worker.DefaultStallTimeout,
				Sources: cli.EnvVars("WORKER_STALL_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    cmd.FlagMaxLoopIterations,
				Usage:   "Maximum visits of a single node within one execution",
				Value:   workflow.DefaultMaxLoopIterations,
				Sources: cli.EnvVars("MAX_LOOP_ITERATIONS"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics and /health",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String(cmd.FlagLogLevel))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowforge-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing FlowForge Worker")

			components, err := cmd.Build(ctx, command, "flowforge-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := components.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			manager := NewWorkerManager(logger, components, metrics.New(), Settings{
				Pool: worker.Config{
					ID:           workerID,
					Concurrency:  int(command.Int("concurrency")),
					RateLimit:    command.Float("rate-limit"),
					StallTimeout: command.Duration("stall-timeout"),
				},
				MaxLoopIterations: int(command.Int(cmd.FlagMaxLoopIterations)),
				MetricsPort:       int(command.Int("metrics-port")),
			})

			return manager.Start(ctx)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("flowforge-worker").Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
