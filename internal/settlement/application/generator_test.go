package application_test

import (
	"context"
	"fmt"
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
	catalogmemory "guardduty-billing/internal/catalog/infrastructure/memory"
	guard "guardduty-billing/internal/guard/domain"
	guardmemory "guardduty-billing/internal/guard/infrastructure/memory"
	incidentapp "guardduty-billing/internal/incident/application"
	incident "guardduty-billing/internal/incident/domain"
	incidentmemory "guardduty-billing/internal/incident/infrastructure/memory"
	"guardduty-billing/internal/platform/fault"
	"guardduty-billing/internal/platform/memstore"
	"guardduty-billing/internal/settlement/application"
	settlement "guardduty-billing/internal/settlement/domain"
	"guardduty-billing/internal/settlement/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func testCodes() []catalog.BillingCode {
	from := day(time.January, 1)
	one := decimal.NewFromInt(1)
	return []catalog.BillingCode{
		{ID: "c-night", Code: "N10", Kind: catalog.KindNocturnal, Window: catalog.Window{Start: 21 * 60, End: 6 * 60}, Factor: one, Validity: catalog.Validity{From: from}, Modality: "FC", Status: catalog.StatusActive},
		{ID: "c-day", Code: "D10", Kind: catalog.KindDiurnal, Window: catalog.Window{Start: 6 * 60, End: 21 * 60}, Factor: one, Validity: catalog.Validity{From: from}, Modality: "FC", Status: catalog.StatusActive},
		{ID: "c-weekend", Code: "A05", Kind: catalog.KindOther, Weekdays: catalog.NewWeekdaySet(time.Saturday, time.Sunday), Factor: dec("1.5"), Validity: catalog.Validity{From: from}, Modality: "FC", Status: catalog.StatusActive},
	}
}

func testRate(until *time.Time) catalog.RateTable {
	return catalog.RateTable{
		ID:                           "rate-2025",
		Name:                         "2025",
		PassiveGuardValue:            dec("100.00"),
		ActiveHourValue:              dec("20.00"),
		NocturnalSurchargeWeekday:    dec("5.00"),
		NocturnalSurchargeNonWorking: dec("7.50"),
		Validity:                     catalog.Validity{From: day(time.January, 1), Until: until},
		Status:                       catalog.StatusActive,
	}
}

func testGuards() []guard.Guard {
	return []guard.Guard{
		{ID: "g-sat", Date: day(time.March, 15), UserID: "ana", Kind: billing.GuardBoth},
		{ID: "g-tue", Date: day(time.March, 18), UserID: "bob", Kind: billing.GuardActive},
		{ID: "g-wed", Date: day(time.March, 19), UserID: "ana", Kind: billing.GuardPassive},
		{ID: "g-apr", Date: day(time.April, 2), UserID: "bob", Kind: billing.GuardActive},
		{ID: "g-sat-am", Date: day(time.March, 22), UserID: "carl", Kind: billing.GuardPassive},
	}
}

type fixture struct {
	incidents *incidentapp.Service
	generator *application.Generator
	service   *application.Service
	repo      *memory.Repository
}

func newFixture(t *testing.T, rates ...catalog.RateTable) *fixture {
	t.Helper()
	store := memstore.New()
	clock := fixedClock{now: time.Date(2025, time.April, 3, 8, 0, 0, 0, time.UTC)}
	snapshot := catalogmemory.NewSnapshot(testCodes(), rates)
	matcher, err := catalogapp.NewMatcher(snapshot)
	require.NoError(t, err)
	guards := guardmemory.NewDirectory(testGuards()...)

	incidents, err := incidentapp.NewService(store, incidentmemory.NewRepository(store), guards, snapshot, matcher,
		incidentapp.WithClock(clock))
	require.NoError(t, err)

	engine, err := billingapp.NewEngine(calendar.NewStatic())
	require.NoError(t, err)
	pricer, err := billingapp.NewService(snapshot, engine, nil)
	require.NoError(t, err)

	repo := memory.NewRepository(store)
	seq := 0
	generator, err := application.NewGenerator(store, repo, incidents.SettlementPort(), guards, snapshot, pricer,
		application.WithClock(clock),
		application.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("stl-%d", seq)
		}),
	)
	require.NoError(t, err)
	service, err := application.NewService(store, repo, clock, nil)
	require.NoError(t, err)
	return &fixture{incidents: incidents, generator: generator, service: service, repo: repo}
}

func (f *fixture) report(t *testing.T, guardID string, start time.Time, minutes int, approve bool) *incident.Incident {
	t.Helper()
	ctx := context.Background()
	inc, err := f.incidents.Create(ctx, incidentapp.CreateInput{
		GuardID:     guardID,
		Start:       start,
		End:         start.Add(time.Duration(minutes) * time.Minute),
		Description: "call-out",
		ActorID:     "reporter",
	})
	require.NoError(t, err)
	if approve {
		inc, err = f.incidents.ChangeState(ctx, inc.ID, incident.StateApproved, "supervisor", "")
		require.NoError(t, err)
	}
	return inc
}

func (f *fixture) seedMarch(t *testing.T) (pending, april *incident.Incident) {
	f.report(t, "g-sat", time.Date(2025, time.March, 15, 22, 30, 0, 0, time.UTC), 165, true)
	f.report(t, "g-tue", time.Date(2025, time.March, 18, 10, 0, 0, 0, time.UTC), 90, true)
	f.report(t, "g-wed", time.Date(2025, time.March, 19, 8, 0, 0, 0, time.UTC), 60, true)
	pending = f.report(t, "g-wed", time.Date(2025, time.March, 19, 12, 0, 0, 0, time.UTC), 30, false)
	april = f.report(t, "g-apr", time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC), 60, true)
	return pending, april
}

func TestGenerate_SettlesApprovedIncidentsOfPeriod(t *testing.T) {
	f := newFixture(t, testRate(nil))
	ctx := context.Background()
	pending, april := f.seedMarch(t)

	got, err := f.generator.Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)
	assert.Equal(t, settlement.Period("2025-03"), got.Period)
	assert.Equal(t, settlement.StatusPending, got.Status)
	assert.Equal(t, "admin", got.GeneratedBy)

	// ana: saturday night 250 x (1.5 + 1) plus passive weekday 100; bob: 2h x 20.
	require.Len(t, got.Details, 2)
	assert.Equal(t, "ana", got.Details[0].UserID)
	assert.Equal(t, 2, got.Details[0].IncidentCount)
	assert.Equal(t, 165+165+60, got.Details[0].TotalMinutes)
	assert.True(t, got.Details[0].TotalAmount.Equal(dec("725")), got.Details[0].TotalAmount.String())
	assert.Equal(t, "g-sat", got.Details[0].GuardID)
	assert.Equal(t, day(time.April, 3), got.Details[0].AggregationDate)
	assert.Equal(t, "bob", got.Details[1].UserID)
	assert.True(t, got.Details[1].TotalAmount.Equal(dec("40")), got.Details[1].TotalAmount.String())
	assert.True(t, got.TotalAmount.Equal(dec("765")), got.TotalAmount.String())
	assert.Equal(t, 480, got.TotalMinutes)

	settled, err := f.incidents.List(ctx, incident.Filter{State: incident.StateSettled})
	require.NoError(t, err)
	require.Len(t, settled, 3)
	sum := decimal.Zero
	for _, inc := range settled {
		assert.True(t, inc.Priced())
		sum = sum.Add(inc.TotalAmount())
		history, err := f.incidents.History(ctx, inc.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, incident.StateSettled, last.ToState)
		assert.Equal(t, "admin", last.ActorID)
	}
	assert.True(t, sum.Equal(got.TotalAmount))

	stillPending, err := f.incidents.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StateRegistered, stillPending.State)
	stillApproved, err := f.incidents.Get(ctx, april.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StateApproved, stillApproved.State)

	stored, err := f.service.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Details, 2)
}

func TestGenerate_ScalesUnroundedTotalByCodeFactor(t *testing.T) {
	rate := testRate(nil)
	rate.PassiveGuardValue = dec("1000.01")
	f := newFixture(t, rate)
	ctx := context.Background()
	inc := f.report(t, "g-sat-am", time.Date(2025, time.March, 22, 10, 0, 0, 0, time.UTC), 60, true)
	require.Len(t, inc.Assignments, 2)

	got, err := f.generator.Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)

	// saturday morning passive: 1000.01 x 0.75 = 750.0075.
	// D10 x 1 = 750.01, A05 x 1.5 = 1125.01125 -> 1125.01.
	settled, err := f.incidents.Get(ctx, inc.ID)
	require.NoError(t, err)
	amounts := make(map[string]string)
	for _, a := range settled.Assignments {
		require.NotNil(t, a.Amount)
		amounts[a.BillingCodeID] = a.Amount.StringFixed(2)
	}
	assert.Equal(t, map[string]string{"c-day": "750.01", "c-weekend": "1125.01"}, amounts)
	assert.True(t, got.TotalAmount.Equal(dec("1875.02")), got.TotalAmount.String())
}

func TestGenerate_DuplicatePeriod(t *testing.T) {
	f := newFixture(t, testRate(nil))
	ctx := context.Background()
	f.seedMarch(t)

	_, err := f.generator.Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)

	f.report(t, "g-wed", time.Date(2025, time.March, 19, 15, 0, 0, 0, time.UTC), 30, true)
	_, err = f.generator.Generate(ctx, "2025-03", "admin")
	assert.ErrorIs(t, err, settlement.ErrDuplicatePeriod)
	assert.ErrorIs(t, err, fault.ErrConflict)

	approved, err := f.incidents.List(ctx, incident.Filter{State: incident.StateApproved, To: ptr(day(time.March, 31))})
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestGenerate_NothingToSettle(t *testing.T) {
	f := newFixture(t, testRate(nil))
	f.report(t, "g-tue", time.Date(2025, time.March, 18, 10, 0, 0, 0, time.UTC), 90, false)

	_, err := f.generator.Generate(context.Background(), "2025-03", "admin")
	assert.ErrorIs(t, err, settlement.ErrNothingToSettle)
	assert.ErrorIs(t, err, fault.ErrPrecondition)

	all, err := f.service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGenerate_InvalidPeriod(t *testing.T) {
	f := newFixture(t, testRate(nil))
	for _, period := range []string{"", "2025-13", "03-2025", "2025-03-01"} {
		_, err := f.generator.Generate(context.Background(), period, "admin")
		assert.ErrorIs(t, err, settlement.ErrInvalidPeriod, period)
	}
}

func TestGenerate_MissingRateRollsBack(t *testing.T) {
	until := day(time.March, 16)
	f := newFixture(t, testRate(&until))
	ctx := context.Background()
	f.seedMarch(t)

	_, err := f.generator.Generate(ctx, "2025-03", "admin")
	assert.ErrorIs(t, err, catalog.ErrNoRateForDate)

	all, err := f.service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	approved, err := f.incidents.List(ctx, incident.Filter{State: incident.StateApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 4)
	for _, inc := range approved {
		for _, a := range inc.Assignments {
			assert.Nil(t, a.Amount, "amount of %s survived rollback", inc.ID)
		}
	}
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t, testRate(nil))
	ctx := context.Background()
	f.seedMarch(t)
	got, err := f.generator.Generate(ctx, "2025-03", "admin")
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(ctx, got.ID, settlement.StatusPaid, "admin")
	assert.ErrorIs(t, err, settlement.ErrInvalidStatusTransition)

	updated, err := f.service.ChangeStatus(ctx, got.ID, settlement.StatusApproved, "admin")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusApproved, updated.Status)

	updated, err = f.service.ChangeStatus(ctx, got.ID, settlement.StatusPaid, "admin")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPaid, updated.Status)

	_, err = f.service.ChangeStatus(ctx, got.ID, settlement.StatusCancelled, "admin")
	assert.ErrorIs(t, err, settlement.ErrInvalidStatusTransition)

	_, err = f.service.ChangeStatus(ctx, got.ID, settlement.Status("archived"), "admin")
	assert.ErrorIs(t, err, settlement.ErrInvalidStatus)

	_, err = f.service.ChangeStatus(ctx, "missing", settlement.StatusApproved, "admin")
	assert.ErrorIs(t, err, settlement.ErrSettlementNotFound)
}

func ptr[T any](v T) *T { return &v }
