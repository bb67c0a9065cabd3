package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/lib/pq"
)

// CredentialRepository handles integrations and API keys.
type CredentialRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *sql.DB, logger *slog.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

const integrationColumns = `
			id
		  , user_id
		  , type
		  , encrypted_config
		  , key_version
		  , is_active
		  , created_at
		  , updated_at
`

func (r *CredentialRepository) ActiveIntegration(ctx context.Context, userID, integrationType string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + `
		FROM integrations
		WHERE user_id = $1 AND type = $2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`

	integration, err := scanIntegration(r.db.QueryRowContext(ctx, query, userID, integrationType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ActiveIntegration", "integration", integrationType, persistence.ErrIntegrationNotFound)
		}

		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	return integration, nil
}

func (r *CredentialRepository) Integrations(ctx context.Context) ([]*models.Integration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	integrations := make([]*models.Integration, 0)

	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}

		integrations = append(integrations, integration)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

func (r *CredentialRepository) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	query := `
		INSERT INTO integrations (` + integrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			type = EXCLUDED.type,
			encrypted_config = EXCLUDED.encrypted_config,
			key_version = EXCLUDED.key_version,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		integration.ID,
		integration.UserID,
		integration.Type,
		integration.EncryptedConfig,
		integration.KeyVersion,
		integration.IsActive,
		integration.CreatedAt,
		integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}

	return nil
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var integration models.Integration

	err := row.Scan(
		&integration.ID,
		&integration.UserID,
		&integration.Type,
		&integration.EncryptedConfig,
		&integration.KeyVersion,
		&integration.IsActive,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &integration, nil
}

func (r *CredentialRepository) APIKeyByHash(ctx context.Context, hashedKey string) (*models.APIKey, error) {
	query := `
		SELECT
			id
		  , user_id
		  , name
		  , key_prefix
		  , hashed_key
		  , scopes
		  , expires_at
		  , last_used_at
		  , created_at
		FROM api_keys
		WHERE hashed_key = $1
	`

	var key models.APIKey

	err := r.db.QueryRowContext(ctx, query, hashedKey).Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.KeyPrefix,
		&key.HashedKey,
		pq.Array(&key.Scopes),
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("APIKeyByHash", "api key", "", persistence.ErrAPIKeyNotFound)
		}

		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	return &key, nil
}

func (r *CredentialRepository) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, key_prefix, hashed_key, scopes, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyPrefix,
		key.HashedKey,
		pq.Array(scopes),
		key.ExpiresAt,
		key.LastUsedAt,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}

	return nil
}

func (r *CredentialRepository) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = $2 WHERE id = $1", id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("TouchAPIKey", "api key", id, persistence.ErrAPIKeyNotFound)
	}

	return nil
}
