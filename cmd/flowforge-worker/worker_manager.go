package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/worker"
	"github.com/flowforge/flowforge/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"golang.org/x/sync/errgroup"
)

type Settings struct {
	Pool              worker.Config
	MaxLoopIterations int
	MetricsPort       int
}

// WorkerManager wires the runtime into a worker pool and serves its health and metrics.
type WorkerManager struct {
	logger     *slog.Logger
	components *cmd.Components
	metrics    *metrics.Metrics
	settings   Settings
}

func NewWorkerManager(logger *slog.Logger, components *cmd.Components, m *metrics.Metrics, settings Settings) *WorkerManager {
	return &WorkerManager{
		logger:     logger,
		components: components,
		metrics:    m,
		settings:   settings,
	}
}

// Pool builds the worker pool over the execution runtime.
func (wm *WorkerManager) Pool() *worker.Pool {
	c := wm.components

	runtime := workflow.NewRuntime(wm.logger, c.Persistence, c.Registry, c.Vault, workflow.Options{
		MaxLoopIterations: wm.settings.MaxLoopIterations,
		Tracer:            c.Tracer,
	})

	return worker.New(wm.logger, c.Queue, runtime, wm.settings.Pool,
		worker.WithPublisher(c.EventBus),
		worker.WithMetrics(wm.metrics),
	)
}

// App serves /health and /metrics for the worker process.
func (wm *WorkerManager) App() *fiber.App {
	app := fiber.New()

	app.Get("/health", func(c fiber.Ctx) error {
		if err := wm.components.Persistence.HealthCheck(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}

		stats, err := wm.components.Queue.Stats(c.Context())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}

		return c.JSON(fiber.Map{"status": "healthy", "queue": stats})
	})

	app.Get("/metrics", adaptor.HTTPHandler(wm.metrics.Handler()))

	return app
}

// Start runs the pool, the event observer and the metrics server until ctx is cancelled.
func (wm *WorkerManager) Start(ctx context.Context) error {
	if err := wm.metrics.Observe(wm.components.EventBus); err != nil {
		return fmt.Errorf("observe events: %w", err)
	}

	if err := wm.components.EventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	pool := wm.Pool()
	app := wm.App()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return pool.Run(ctx)
	})

	group.Go(func() error {
		return app.Listen(":"+strconv.Itoa(wm.settings.MetricsPort), fiber.ListenConfig{DisableStartupMessage: true})
	})

	group.Go(func() error {
		<-ctx.Done()

		return app.Shutdown()
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
