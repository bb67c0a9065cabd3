// Package auth verifies platform API keys and authenticates inbound webhook calls.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/google/uuid"
)

const (
	// KeyPrefix starts every platform API key.
	KeyPrefix = "ff_"

	// ScopeWorkflowTrigger allows starting workflows through webhooks and manual runs.
	ScopeWorkflowTrigger = "workflow:trigger"
	// ScopeExecutionRead allows reading execution history.
	ScopeExecutionRead = "execution:read"

	keyBytes      = 32
	displayLength = len(KeyPrefix) + 8
)

// IsAPIKey reports whether raw looks like a platform API key: the prefix followed by 64
// lowercase hex characters.
func IsAPIKey(raw string) bool {
	body, ok := strings.CutPrefix(raw, KeyPrefix)
	if !ok || len(body) != keyBytes*2 {
		return false
	}

	for _, r := range body {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}

	return true
}

// HashKey returns the stored form of a key: its SHA-256, hex encoded.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the part of a key that is safe to show, e.g. "ff_1a2b3c4d...".
func DisplayPrefix(key string) string {
	if len(key) < displayLength {
		return key
	}

	return key[:displayLength] + "..."
}

// GenerateKey returns a fresh random API key.
func GenerateKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return KeyPrefix + hex.EncodeToString(raw), nil
}

// DefaultScopes are granted to keys created without explicit scopes.
func DefaultScopes() []string {
	return []string{ScopeWorkflowTrigger, ScopeExecutionRead}
}

// APIKeys issues and verifies platform API keys. Only hashes are persisted.
type APIKeys struct {
	store  persistence.APIKeyRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewAPIKeys(store persistence.APIKeyRepository, logger *slog.Logger) *APIKeys {
	return &APIKeys{
		store:  store,
		logger: logger.With("module", "api_keys"),
		now:    time.Now,
	}
}

// Create issues a key for userID. The returned plaintext is never stored and cannot be
// recovered later.
func (a *APIKeys) Create(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (string, *models.APIKey, error) {
	if userID == "" {
		return "", nil, failures.New(failures.KindValidation, "create_api_key", "user id is required")
	}

	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	key, err := GenerateKey()
	if err != nil {
		return "", nil, failures.Wrap(failures.KindFatal, "create_api_key", err)
	}

	record := &models.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyPrefix: DisplayPrefix(key),
		HashedKey: HashKey(key),
		Scopes:    scopes,
		ExpiresAt: expiresAt,
		CreatedAt: a.now().UTC(),
	}

	if err := a.store.SaveAPIKey(ctx, record); err != nil {
		return "", nil, err
	}

	a.logger.InfoContext(ctx, "API key created", "api_key_id", record.ID, "user_id", userID, "prefix", record.KeyPrefix)

	return key, record, nil
}

// Verify checks key and returns its record when it exists, has not expired and grants
// scope. Every rejection is a 401 auth error.
func (a *APIKeys) Verify(ctx context.Context, key, scope string) (*models.APIKey, error) {
	if key == "" {
		return nil, failures.Auth(http.StatusUnauthorized, "API key required")
	}

	if !IsAPIKey(key) {
		return nil, failures.Auth(http.StatusUnauthorized, "Invalid API key")
	}

	record, err := a.store.APIKeyByHash(ctx, HashKey(key))
	if err != nil {
		if errors.Is(err, persistence.ErrAPIKeyNotFound) {
			return nil, failures.Auth(http.StatusUnauthorized, "Invalid API key")
		}

		return nil, failures.Wrap(failures.KindTransient, "verify_api_key", err)
	}

	now := a.now().UTC()

	if record.IsExpired(now) {
		return nil, failures.Auth(http.StatusUnauthorized, "API key expired")
	}

	if !record.HasScope(scope) {
		return nil, failures.Auth(http.StatusUnauthorized, "API key lacks scope "+scope)
	}

	if err := a.store.TouchAPIKey(context.WithoutCancel(ctx), record.ID, now); err != nil {
		a.logger.WarnContext(ctx, "Failed to record API key use", "api_key_id", record.ID, "error", err)
	}

	return record, nil
}
