package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "guardduty-billing/internal/billing/domain"
	guard "guardduty-billing/internal/guard/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database/dbtest"
)

func TestRepository_RoundTrip(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := NewRepository(db)
	ctx := context.Background()
	start := civil.TimeOfDay(8 * 60)

	require.NoError(t, repo.Upsert(ctx, guard.Guard{
		ID: "g-1", Date: time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
		UserID: "u-1", Kind: billing.GuardActive, StartTime: &start,
	}))
	require.NoError(t, repo.Upsert(ctx, guard.Guard{
		ID: "g-2", Date: time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC), UserID: "u-1",
	}))

	got, err := repo.GetGuard(ctx, "g-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, billing.GuardActive, got.Kind)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), got.Date)
	require.NotNil(t, got.StartTime)
	assert.Equal(t, start, *got.StartTime)

	got, err = repo.GetGuard(ctx, "g-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, billing.GuardBoth, got.Kind)
	assert.Nil(t, got.StartTime)
	assert.Equal(t, civil.TimeOfDay(600), got.NominalStart(600))

	got, err = repo.GetGuard(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
