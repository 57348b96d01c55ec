// Package cmd provides shared wiring helpers for the engine binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rivetflow/rivet/pkg/persistence"
	"github.com/rivetflow/rivet/pkg/persistence/file"
	"github.com/rivetflow/rivet/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence layer from a database URL. A
// postgres:// URL selects PostgreSQL; anything else is treated as a
// file path for the development store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		postgres, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return postgres
	default:
		return file.NewPersistence(databaseURL)
	}
}
