package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/metrics"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowforge-api",
		Usage:                 "Receive webhooks and enqueue workflow executions",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String(cmd.FlagLogLevel))

			logger := log.WithModule("flowforge-api")

			logger.InfoContext(ctx, "Initializing FlowForge API")

			components, err := cmd.Build(ctx, command, "flowforge-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := components.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			api := NewAPI(logger, components, metrics.New())

			return api.Start(ctx, int(command.Int("port")))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("flowforge-api").Error("Exited with error", "error", err)
		os.Exit(1)
	}
}
