package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/database/dbtest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db := dbtest.OpenSQLite(t)

	applied, err := db.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestWithinTxRollsBackAndDropsHooks(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	boom := errors.New("boom")
	hookRan := false

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := db.Conn(ctx).ExecContext(ctx, `INSERT INTO holidays (holiday_date, name) VALUES ($1, $2)`,
			time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), "Labour Day")
		require.NoError(t, err)
		database.AfterCommit(ctx, func() { hookRan = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holidays`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithinTxRunsHooksAfterCommit(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	var order []string

	err := db.WithinTx(ctx, func(ctx context.Context) error {
		database.AfterCommit(ctx, func() { order = append(order, "hook") })
		// nested calls join the outer transaction
		return db.WithinTx(ctx, func(ctx context.Context) error {
			order = append(order, "work")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "hook"}, order)
}

func TestIsUniqueViolation(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	day := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := db.ExecContext(ctx, `INSERT INTO holidays (holiday_date, name) VALUES ($1, $2)`, day, "New Year")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO holidays (holiday_date, name) VALUES ($1, $2)`, day, "New Year")
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.False(t, database.IsUniqueViolation(errors.New("other")))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open("oracle", "dsn")
	assert.Error(t, err)
	assert.Equal(t, "", string(database.Wrap(nil, database.DialectSQLite).Dialect()))
}
