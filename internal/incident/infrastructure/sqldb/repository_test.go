package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "guardduty-billing/internal/billing/domain"
	guard "guardduty-billing/internal/guard/domain"
	guardsql "guardduty-billing/internal/guard/infrastructure/sqldb"
	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/database/dbtest"
)

func seedGuard(t *testing.T, db *database.DB, id string, date time.Time) {
	t.Helper()
	require.NoError(t, guardsql.NewRepository(db).Upsert(context.Background(), guard.Guard{
		ID: id, Date: date, UserID: "ana", Kind: billing.GuardBoth,
	}))
}

func newIncident(id, guardID string, date time.Time, startHour int) *incident.Incident {
	start := date.Add(time.Duration(startHour) * time.Hour)
	now := time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)
	return &incident.Incident{
		ID: id, GuardID: guardID, Date: date, Start: start, End: start.Add(90 * time.Minute),
		Description: "pump", Modality: "FC", State: incident.StateRegistered, CreatedBy: "ana",
		CreatedAt: now, UpdatedAt: now,
		Assignments: []incident.CodeAssignment{
			{ID: id + "-a1", IncidentID: id, BillingCodeID: "c-1", Code: "A05", Minutes: 90, Explicit: true},
			{ID: id + "-a2", IncidentID: id, BillingCodeID: "c-2", Code: "N10", Minutes: 90},
		},
	}
}

func TestRepository_Lifecycle(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := NewRepository(db)
	ctx := context.Background()
	date := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	seedGuard(t, db, "g-1", date)

	inc := newIncident("i-1", "g-1", date, 22)
	note := "second call"
	inc.Observations = &note
	require.NoError(t, repo.Create(ctx, inc))

	got, err := repo.Get(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, date, got.Date)
	assert.True(t, got.Start.Equal(inc.Start))
	assert.Equal(t, time.UTC, got.Start.Location())
	require.NotNil(t, got.Observations)
	assert.Equal(t, "second call", *got.Observations)
	require.Len(t, got.Assignments, 2)
	assert.Equal(t, "A05", got.Assignments[0].Code)
	assert.Nil(t, got.Assignments[0].Amount)
	assert.True(t, got.Assignments[0].Explicit)
	assert.False(t, got.Assignments[1].Explicit)

	require.NoError(t, repo.SetAmounts(ctx, "i-1", map[string]decimal.Decimal{
		"i-1-a1": decimal.RequireFromString("137.50"),
		"i-1-a2": decimal.RequireFromString("22.5"),
	}))
	got, err = repo.Get(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, got.Assignments[0].Amount)
	assert.True(t, got.Assignments[0].Amount.Equal(decimal.RequireFromString("137.5")))
	assert.True(t, got.TotalAmount().Equal(decimal.RequireFromString("160")))

	got.Observations = nil
	got.End = got.End.Add(time.Hour)
	got.Assignments = got.Assignments[:1]
	got.Assignments[0].Amount = nil
	got.Assignments[0].Minutes = 150
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Nil(t, got.Observations)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, 150, got.Assignments[0].Minutes)

	at := time.Date(2025, time.March, 21, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateState(ctx, "i-1", incident.StateApproved, at))
	assert.ErrorIs(t, repo.UpdateState(ctx, "missing", incident.StateApproved, at), incident.ErrNotFound)

	missing, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_ListAndHistory(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	repo := NewRepository(db)
	ctx := context.Background()
	march := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	seedGuard(t, db, "g-march", march)
	seedGuard(t, db, "g-april", april)

	require.NoError(t, repo.Create(ctx, newIncident("i-late", "g-march", march, 20)))
	require.NoError(t, repo.Create(ctx, newIncident("i-early", "g-march", march, 8)))
	require.NoError(t, repo.Create(ctx, newIncident("i-april", "g-april", april, 8)))
	require.NoError(t, repo.UpdateState(ctx, "i-early", incident.StateApproved, march))

	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	got, err := repo.List(ctx, incident.Filter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "i-early", got[0].ID)
	assert.Equal(t, "i-late", got[1].ID)
	assert.Len(t, got[0].Assignments, 2)

	err = db.WithinTx(ctx, func(ctx context.Context) error {
		approved, err := repo.ListForUpdate(ctx, incident.Filter{State: incident.StateApproved, From: &from, To: &to})
		if err != nil {
			return err
		}
		require.Len(t, approved, 1)
		assert.Equal(t, "i-early", approved[0].ID)
		return nil
	})
	require.NoError(t, err)

	limited, err := repo.List(ctx, incident.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	registered := incident.StateRegistered
	base := time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AppendHistory(ctx, incident.HistoryEntry{ID: "h-1", IncidentID: "i-late", ToState: incident.StateRegistered, ActorID: "ana", CreatedAt: base}))
	require.NoError(t, repo.AppendHistory(ctx, incident.HistoryEntry{ID: "h-0", IncidentID: "i-late", FromState: &registered, ToState: incident.StateReviewed, ActorID: "sup", Notes: "ok", CreatedAt: base}))

	require.NoError(t, repo.Delete(ctx, "i-late"))
	deleted, err := repo.Get(ctx, "i-late")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	history, err := repo.History(ctx, "i-late")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "h-1", history[0].ID)
	assert.Nil(t, history[0].FromState)
	assert.Equal(t, "h-0", history[1].ID)
	require.NotNil(t, history[1].FromState)
	assert.Equal(t, incident.StateRegistered, *history[1].FromState)
	assert.Equal(t, "ok", history[1].Notes)
}
