// Package dbtest opens throwaway databases for repository tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"guardduty-billing/internal/platform/database"
)

// OpenSQLite returns a migrated in-memory SQLite database scoped to t.
func OpenSQLite(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.Open("sqlite3", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// OpenPostgres returns a migrated Postgres database from PG_DSN, skipping
// the test when it is not set.
func OpenPostgres(t testing.TB) *database.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := database.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}
