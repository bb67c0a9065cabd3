package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/vault"
	cli "github.com/urfave/cli/v3"
)

// session holds what an admin subcommand needs. Only persistence and the vault are
// opened; admin commands never touch the queue or the event bus.
type session struct {
	logger      *slog.Logger
	out         io.Writer
	persistence persistence.Persistence
	registry    *registry.Registry
	vault       *vault.Vault
}

func adminFlags() []cli.Flag {
	keep := map[string]bool{
		cmd.FlagDatabaseURL:       true,
		cmd.FlagEncryptionKey:     true,
		cmd.FlagEncryptionVersion: true,
		cmd.FlagPreviousKeys:      true,
		cmd.FlagEnvironment:       true,
		cmd.FlagLogLevel:          true,
	}

	var flags []cli.Flag

	for _, flag := range cmd.CommonFlags() {
		if keep[flag.Names()[0]] {
			flags = append(flags, flag)
		}
	}

	return flags
}

func withSession(action func(ctx context.Context, command *cli.Command, s *session) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		log.Setup(command.String(cmd.FlagLogLevel))

		logger := log.WithModule("flowforge")

		store, err := cmd.NewPersistence(ctx, logger, command.String(cmd.FlagDatabaseURL))
		if err != nil {
			return err
		}

		defer func() {
			if err := store.Close(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
			}
		}()

		v, err := vault.NewFromConfig(vault.Config{
			Key:         command.String(cmd.FlagEncryptionKey),
			Version:     int(command.Int(cmd.FlagEncryptionVersion)),
			Previous:    command.String(cmd.FlagPreviousKeys),
			Environment: command.String(cmd.FlagEnvironment),
		}, logger)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}

		reg := registry.NewRegistry(logger)
		if err := reg.RegisterDefaults(); err != nil {
			return err
		}

		return action(ctx, command, &session{
			logger:      logger,
			out:         command.Root().Writer,
			persistence: store,
			registry:    reg,
			vault:       v,
		})
	}
}
