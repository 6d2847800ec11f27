package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies embedded migrations that have not run yet and returns the
// versions applied by this call.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL
)`); err != nil {
		return nil, fmt.Errorf("database: create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return applied, err
		}
		ran, err := db.applyMigration(ctx, version, string(body))
		if err != nil {
			return applied, fmt.Errorf("database: migration %s: %w", version, err)
		}
		if ran {
			applied = append(applied, version)
		}
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, version, body string) (bool, error) {
	ran := false
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		var count int
		if err := db.Conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if _, err := db.Conn(ctx).ExecContext(ctx, body); err != nil {
			return err
		}
		if _, err := db.Conn(ctx).ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, version, time.Now().UTC()); err != nil {
			return err
		}
		ran = true
		return nil
	})
	return ran, err
}
