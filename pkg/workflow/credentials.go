package workflow

import (
	"context"
	"errors"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// Decrypter opens integration settings sealed by the credential vault.
type Decrypter interface {
	DecryptJSON(ciphertext string, keyVersion int, out any) error
}

// credentialSource decrypts a user's integrations on every call. One source is created per
// execution and discarded with it, so plaintext never outlives the run.
type credentialSource struct {
	integrations persistence.IntegrationRepository
	decrypter    Decrypter
	userID       string
}

func (c *credentialSource) Credentials(ctx context.Context, integrationType string) (map[string]any, error) {
	integration, err := c.integrations.ActiveIntegration(ctx, c.userID, integrationType)
	if err != nil {
		if errors.Is(err, persistence.ErrIntegrationNotFound) {
			return nil, failures.Newf(failures.KindConfiguration, integrationType, "no %s integration connected", integrationType)
		}

		return nil, failures.Wrap(failures.KindTransient, integrationType, err)
	}

	if c.decrypter == nil {
		return nil, failures.New(failures.KindFatal, integrationType, "credential vault is not configured")
	}

	var settings map[string]any
	if err := c.decrypter.DecryptJSON(integration.EncryptedConfig, integration.KeyVersion, &settings); err != nil {
		return nil, &failures.Error{Kind: failures.KindFatal, Op: integrationType, Message: "failed to decrypt credential", Err: err}
	}

	if settings == nil {
		settings = map[string]any{}
	}

	return settings, nil
}
