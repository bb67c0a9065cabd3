// Package cmd builds the components shared by the command-line binaries from their flags.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/otelhelper"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/queue"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/vault"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Components are the long-lived dependencies of a binary. They are built once at startup
// and passed explicitly.
type Components struct {
	Persistence persistence.Persistence
	Queue       queue.Queue
	EventBus    eventbus.EventBus
	Registry    *registry.Registry
	Vault       *vault.Vault
	Tracer      trace.Tracer

	closers []func(context.Context) error
}

// Build creates every component from the CommonFlags of command. On error, whatever was
// already opened is closed.
func Build(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (c *Components, err error) {
	c = &Components{}

	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	c.Persistence, err = NewPersistence(ctx, logger, command.String(FlagDatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	c.closers = append(c.closers, c.Persistence.Close)

	c.Queue, err = NewQueue(ctx, logger, command.String(FlagQueueURL), command.String(FlagQueuePrefix))
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	c.closers = append(c.closers, func(context.Context) error { return c.Queue.Close() })

	tracing := command.Bool(FlagOtel)

	c.EventBus, err = NewEventBus(command.String(FlagEventBus), command.String(FlagKafkaBrokers), serviceName, tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}

	c.closers = append(c.closers, func(context.Context) error { return c.EventBus.Close() })

	c.Registry = registry.NewRegistry(logger)
	if err = c.Registry.RegisterDefaults(); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	c.Vault, err = vault.NewFromConfig(vault.Config{
		Key:         command.String(FlagEncryptionKey),
		Version:     int(command.Int(FlagEncryptionVersion)),
		Previous:    command.String(FlagPreviousKeys),
		Environment: command.String(FlagEnvironment),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	c.Tracer = otelhelper.NoopTracer()

	if tracing {
		c.Tracer, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("tracer: %w", err)
		}
	}

	return c, nil
}

// Close releases the components in reverse order of creation.
func (c *Components) Close(ctx context.Context) error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.closers = nil

	return errors.Join(errs...)
}
