// Package main runs the cron scheduler that dispatches schedule triggers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/scheduler"
	"github.com/flowforge/flowforge/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowforge-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Enqueue executions for schedule triggers",
		Flags: append(cmd.CommonFlags(),
			&cli.DurationFlag{
				Name:    "reload-interval",
				Usage:   "How often schedule triggers are reloaded from the database",
				Value:   scheduler.DefaultReloadInterval,
				Sources: cli.EnvVars("SCHEDULER_RELOAD_INTERVAL"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String(cmd.FlagLogLevel))

			logger := log.WithModule("flowforge-scheduler")

			logger.InfoContext(ctx, "Initializing FlowForge Scheduler")

			components, err := cmd.Build(ctx, command, "flowforge-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := components.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			dispatcher := services.NewDispatcher(logger, components.Persistence, components.Queue, components.Registry,
				services.WithEventPublisher(components.EventBus))

			return scheduler.New(logger, components.Persistence, dispatcher).Run(ctx, command.Duration("reload-interval"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("flowforge-scheduler").Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
