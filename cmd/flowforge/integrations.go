package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/vault"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func IntegrationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "integrations",
		Usage: "Store and rotate encrypted integration credentials",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Encrypt and store credentials for a user",
				Flags: append(adminFlags(),
					&cli.StringFlag{Name: "user", Usage: "Owner of the integration", Required: true},
					&cli.StringFlag{Name: "type", Usage: "Integration type, e.g. slack, discord, email", Required: true},
					&cli.StringFlag{Name: "credentials", Usage: "Credentials as a JSON object", Required: true},
				),
				Action: withSession(func(ctx context.Context, command *cli.Command, s *session) error {
					integration, err := addIntegration(ctx, s.persistence, s.vault,
						command.String("user"), command.String("type"), command.String("credentials"))
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "integration %s (key version %d)\n", integration.ID, integration.KeyVersion)

					return err
				}),
			},
			{
				Name:  "reencrypt",
				Usage: "Move every integration to the active encryption key",
				Flags: adminFlags(),
				Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
					moved, err := reencryptIntegrations(ctx, s.logger, s.persistence, s.vault)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(s.out, "re-encrypted %d integrations to key version %d\n", moved, s.vault.ActiveVersion())

					return err
				}),
			},
		},
	}
}

func addIntegration(ctx context.Context, store persistence.IntegrationRepository, v *vault.Vault, userID, integrationType, credentials string) (*models.Integration, error) {
	const op = "add_integration"

	var config map[string]any
	if err := json.Unmarshal([]byte(credentials), &config); err != nil {
		return nil, failures.Wrap(failures.KindValidation, op, err)
	}

	sealed, err := v.EncryptJSON(config)
	if err != nil {
		return nil, failures.Wrap(failures.KindFatal, op, err)
	}

	now := time.Now().UTC()
	integration := &models.Integration{
		ID:              uuid.New().String(),
		UserID:          userID,
		Type:            integrationType,
		EncryptedConfig: sealed,
		KeyVersion:      v.ActiveVersion(),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := store.SaveIntegration(ctx, integration); err != nil {
		return nil, failures.Wrap(failures.KindTransient, op, err)
	}

	return integration, nil
}

// reencryptIntegrations rewrites every integration not sealed with the active key and
// returns how many were moved. It stops at the first integration that cannot be decrypted.
func reencryptIntegrations(ctx context.Context, logger *slog.Logger, store persistence.IntegrationRepository, v *vault.Vault) (int, error) {
	integrations, err := store.Integrations(ctx)
	if err != nil {
		return 0, err
	}

	moved := 0

	for _, integration := range integrations {
		if integration.KeyVersion == v.ActiveVersion() {
			continue
		}

		sealed, version, err := v.Reencrypt(integration.EncryptedConfig, integration.KeyVersion)
		if err != nil {
			return moved, fmt.Errorf("integration %s: %w", integration.ID, err)
		}

		integration.EncryptedConfig = sealed
		integration.KeyVersion = version
		integration.UpdatedAt = time.Now().UTC()

		if err := store.SaveIntegration(ctx, integration); err != nil {
			return moved, fmt.Errorf("integration %s: %w", integration.ID, err)
		}

		logger.InfoContext(ctx, "Re-encrypted integration", "integration_id", integration.ID, "key_version", version)

		moved++
	}

	return moved, nil
}
