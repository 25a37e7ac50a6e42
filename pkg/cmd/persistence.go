package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/dukex/sbpm/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL. URLs without a known
// scheme are treated as file store directories.
//
// nolint:ireturn // stores are selected at runtime
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		return store, nil
	default:
		store, err := file.NewPersistence(databaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
