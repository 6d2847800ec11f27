package sqldb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingapp "guardduty-billing/internal/billing/application"
	billing "guardduty-billing/internal/billing/domain"
	"guardduty-billing/internal/calendar"
	catalogapp "guardduty-billing/internal/catalog/application"
	catalog "guardduty-billing/internal/catalog/domain"
	catalogsql "guardduty-billing/internal/catalog/infrastructure/sqldb"
	guard "guardduty-billing/internal/guard/domain"
	guardsql "guardduty-billing/internal/guard/infrastructure/sqldb"
	incidentapp "guardduty-billing/internal/incident/application"
	incident "guardduty-billing/internal/incident/domain"
	incidentsql "guardduty-billing/internal/incident/infrastructure/sqldb"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/database/dbtest"
	"guardduty-billing/internal/settlement/application"
	settlement "guardduty-billing/internal/settlement/domain"
	"guardduty-billing/internal/settlement/infrastructure/sqldb"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func seedCatalog(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	codes := catalogsql.NewCodeRepository(db)
	for _, code := range []catalog.BillingCode{
		{ID: "c-night", Code: "N10", Kind: catalog.KindNocturnal, Window: catalog.Window{Start: 21 * 60, End: 6 * 60}, Factor: dec("1"), Validity: catalog.Validity{From: from}, Modality: "FC", Status: catalog.StatusActive},
		{ID: "c-day", Code: "D10", Kind: catalog.KindDiurnal, Window: catalog.Window{Start: 6 * 60, End: 21 * 60}, Factor: dec("1"), Validity: catalog.Validity{From: from}, Modality: "FC", Status: catalog.StatusActive},
	} {
		require.NoError(t, codes.Upsert(ctx, code))
	}
	require.NoError(t, catalogsql.NewRateRepository(db).Upsert(ctx, catalog.RateTable{
		ID: "rate-2025", Name: "2025",
		PassiveGuardValue: dec("100"), ActiveHourValue: dec("20"),
		NocturnalSurchargeWeekday: dec("5"), NocturnalSurchargeNonWorking: dec("7.5"),
		Validity: catalog.Validity{From: from}, Status: catalog.StatusActive,
		CreatedAt: from,
	}))
	guards := guardsql.NewRepository(db)
	for _, g := range []guard.Guard{
		{ID: "g-mon", Date: time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC), UserID: "ana", Kind: billing.GuardActive},
		{ID: "g-thu", Date: time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), UserID: "bob", Kind: billing.GuardPassive},
	} {
		require.NoError(t, guards.Upsert(ctx, g))
	}
}

type stack struct {
	incidents *incidentapp.Service
	repo      *sqldb.Repository
	guards    *guardsql.Repository
	codes     *catalogsql.CodeRepository
	pricer    *billingapp.Service
	clock     fixedClock
}

func newStack(t *testing.T, db *database.DB) *stack {
	t.Helper()
	seedCatalog(t, db)
	clock := fixedClock{now: time.Date(2025, time.April, 1, 7, 0, 0, 0, time.UTC)}

	codes := catalogsql.NewCodeRepository(db)
	matcher, err := catalogapp.NewMatcher(codes)
	require.NoError(t, err)
	guards := guardsql.NewRepository(db)
	incidents, err := incidentapp.NewService(db, incidentsql.NewRepository(db), guards, codes, matcher,
		incidentapp.WithClock(clock))
	require.NoError(t, err)
	engine, err := billingapp.NewEngine(calendar.NewRepository(db))
	require.NoError(t, err)
	pricer, err := billingapp.NewService(catalogsql.NewRateRepository(db), engine, nil)
	require.NoError(t, err)
	return &stack{incidents: incidents, repo: sqldb.NewRepository(db), guards: guards, codes: codes, pricer: pricer, clock: clock}
}

func (s *stack) generator(t *testing.T, db *database.DB, port application.IncidentPort) *application.Generator {
	t.Helper()
	if port == nil {
		port = s.incidents.SettlementPort()
	}
	generator, err := application.NewGenerator(db, s.repo, port, s.guards, s.codes, s.pricer,
		application.WithClock(s.clock))
	require.NoError(t, err)
	return generator
}

// reportMarch approves one incident for ana and one for bob.
func (s *stack) reportMarch(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, in := range []incidentapp.CreateInput{
		{GuardID: "g-mon", Start: time.Date(2025, time.March, 17, 22, 0, 0, 0, time.UTC), End: time.Date(2025, time.March, 17, 23, 0, 0, 0, time.UTC), Description: "alarm", ActorID: "ana"},
		{GuardID: "g-thu", Start: time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC), End: time.Date(2025, time.March, 20, 9, 45, 0, 0, time.UTC), Description: "call", ActorID: "bob"},
	} {
		inc, err := s.incidents.Create(ctx, in)
		require.NoError(t, err)
		_, err = s.incidents.ChangeState(ctx, inc.ID, incident.StateApproved, "sup", "")
		require.NoError(t, err)
	}
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// failingPort fails MarkSettled on the nth call.
type failingPort struct {
	application.IncidentPort
	failOn int
	calls  int
}

var errMarkSettled = errors.New("mark settled failed")

func (p *failingPort) MarkSettled(ctx context.Context, incidentID, actorID, notes string) error {
	p.calls++
	if p.calls == p.failOn {
		return errMarkSettled
	}
	return p.IncidentPort.MarkSettled(ctx, incidentID, actorID, notes)
}

func TestGenerateOverSQLite(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	s := newStack(t, db)
	repo := s.repo
	incidents := s.incidents
	generator := s.generator(t, db, nil)

	// ana: 22:00-23:00 monday, active 1h x 20 plus 1 nocturnal hour x 5, D10 skipped.
	// bob: thursday morning, passive 100.
	s.reportMarch(t)

	got, err := generator.Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("125")), got.TotalAmount.String())

	stored, err := repo.Get(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, settlement.StatusPending, stored.Status)
	assert.True(t, stored.TotalAmount.Equal(dec("125")))
	assert.Equal(t, 105, stored.TotalMinutes)
	require.Len(t, stored.Details, 2)
	assert.Equal(t, "ana", stored.Details[0].UserID)
	assert.True(t, stored.Details[0].TotalAmount.Equal(dec("25")), stored.Details[0].TotalAmount.String())
	assert.Equal(t, "bob", stored.Details[1].UserID)
	assert.True(t, stored.Details[1].TotalAmount.Equal(dec("100")))
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), stored.Details[1].AggregationDate)

	settled, err := incidents.List(ctx, incident.Filter{State: incident.StateSettled})
	require.NoError(t, err)
	assert.Len(t, settled, 2)

	_, err = generator.Generate(ctx, "2025-03", "admin")
	assert.ErrorIs(t, err, settlement.ErrDuplicatePeriod)

	headers, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Empty(t, headers[0].Details)
}

func TestGenerateRollsBackWhenSettlingFails(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	s := newStack(t, db)
	s.reportMarch(t)

	port := &failingPort{IncidentPort: s.incidents.SettlementPort(), failOn: 2}
	_, err := s.generator(t, db, port).Generate(ctx, "2025-03", "admin")
	require.ErrorIs(t, err, errMarkSettled)
	assert.Equal(t, 2, port.calls)

	assert.Zero(t, countRows(t, db, "settlements"))
	assert.Zero(t, countRows(t, db, "settlement_details"))
	settled, err := s.incidents.List(ctx, incident.Filter{State: incident.StateSettled})
	require.NoError(t, err)
	assert.Empty(t, settled)
	approved, err := s.incidents.List(ctx, incident.Filter{State: incident.StateApproved})
	require.NoError(t, err)
	require.Len(t, approved, 2)
	for _, inc := range approved {
		assert.False(t, inc.Priced(), inc.ID)
	}

	got, err := s.generator(t, db, nil).Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("125")), got.TotalAmount.String())
	assert.Equal(t, 1, countRows(t, db, "settlements"))
	assert.Equal(t, 2, countRows(t, db, "settlement_details"))
}

func TestGenerateConcurrentSamePeriod(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	s := newStack(t, db)
	s.reportMarch(t)
	generator := s.generator(t, db, nil)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = generator.Generate(ctx, "2025-03", "admin")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, settlement.ErrDuplicatePeriod)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, countRows(t, db, "settlements"))
	assert.Equal(t, 2, countRows(t, db, "settlement_details"))
}

func TestRepository_CreateRejectsDuplicatePeriod(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	repo := sqldb.NewRepository(db)
	now := time.Date(2025, time.April, 1, 7, 0, 0, 0, time.UTC)

	first := &settlement.Settlement{ID: "s-1", Period: "2025-03", Status: settlement.StatusPending, GeneratedAt: now, UpdatedAt: now, TotalAmount: dec("10")}
	require.NoError(t, repo.Create(ctx, first))

	second := &settlement.Settlement{ID: "s-2", Period: "2025-03", Status: settlement.StatusPending, GeneratedAt: now, UpdatedAt: now, TotalAmount: dec("10")}
	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, settlement.ErrDuplicatePeriod)

	found, err := repo.FindByPeriod(ctx, "2025-03")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "s-1", found.ID)

	require.NoError(t, repo.UpdateStatus(ctx, "s-1", settlement.StatusApproved, now.Add(time.Hour)))
	got, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusApproved, got.Status)
	assert.True(t, got.UpdatedAt.Equal(now.Add(time.Hour)))

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "nope", settlement.StatusApproved, now), settlement.ErrSettlementNotFound)
	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
