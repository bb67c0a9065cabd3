// Package main provides the FlowForge API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/flowforge/flowforge/pkg/auth"
	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	components *cmd.Components
	metrics    *metrics.Metrics
}

func NewAPI(logger *slog.Logger, components *cmd.Components, m *metrics.Metrics) *API {
	return &API{
		logger:     logger,
		components: components,
		metrics:    m,
	}
}

func (a *API) App() *fiber.App {
	c := a.components

	workflows := services.NewWorkflow(c.Persistence, c.Registry)
	dispatcher := services.NewDispatcher(a.logger, c.Persistence, c.Queue, c.Registry,
		services.WithEventPublisher(c.EventBus))
	keys := auth.NewAPIKeys(c.Persistence, a.logger)

	handlers := web.NewAPIHandlers(a.logger, workflows, dispatcher, c.Persistence, keys, web.WithMetrics(a.metrics))

	app := fiber.New(fiber.Config{
		BodyLimit: web.MaxBodySize,
	})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowForge API")
	})

	handlers.Routes(app)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
