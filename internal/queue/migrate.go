package queue

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// SchemaVersion is the schema version the queue expects after migrating.
const SchemaVersion = 1

//go:embed migrations/*.sql
var migrations embed.FS

// migrate brings the database up to SchemaVersion.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Debug("applied queue migration",
			"version", r.Source.Version,
			"duration_ms", r.Duration.Milliseconds())
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return version, fmt.Errorf("unexpected schema version %d (want %d)", version, SchemaVersion)
	}
	return version, nil
}
