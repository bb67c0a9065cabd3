package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	"github.com/flowforge/flowforge/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL's scheme.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch provider := parsePersistenceProvider(databaseURL); provider {
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence; data is lost on restart")

		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q, expected one of %s",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, _ := strings.Cut(databaseURL, "://")

	return provider
}
