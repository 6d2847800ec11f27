package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/calendar"
	"guardduty-billing/internal/platform/database/dbtest"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type countingCalendar struct {
	calls int
	next  calendar.Calendar
}

func (c *countingCalendar) Lookup(ctx context.Context, date time.Time) (*calendar.Holiday, error) {
	c.calls++
	return c.next.Lookup(ctx, date)
}

func TestParseYAML(t *testing.T) {
	cal, err := calendar.Parse([]byte(`
holidays:
  - date: 2025-01-01
    name: New Year
  - date: 2025-05-01
    name: Labour Day
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cal.Len())

	h, err := cal.Lookup(context.Background(), time.Date(2025, time.May, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Labour Day", h.Name)

	h, err = cal.Lookup(context.Background(), time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, h)

	_, err = calendar.Parse([]byte("holidays:\n  - date: 01/05/2025\n"))
	assert.Error(t, err)
}

func TestCachedExpires(t *testing.T) {
	clock := &fixedClock{now: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)}
	inner := &countingCalendar{next: calendar.NewStatic(calendar.Holiday{Date: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), Name: "Carnival"})}
	cached := calendar.NewCached(inner, time.Hour, clock)
	day := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		h, err := cached.Lookup(context.Background(), day)
		require.NoError(t, err)
		require.NotNil(t, h)
	}
	assert.Equal(t, 1, inner.calls)

	clock.now = clock.now.Add(2 * time.Hour)
	_, err := cached.Lookup(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRepositoryAndChain(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	repo := calendar.NewRepository(db)
	require.NoError(t, repo.Upsert(ctx, calendar.Holiday{Date: time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC), Name: "Christmas"}))

	chain := calendar.Chain{
		calendar.NewStatic(calendar.Holiday{Date: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), Name: "New Year"}),
		repo,
	}
	h, err := chain.Lookup(ctx, time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Christmas", h.Name)
	assert.Equal(t, time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC), h.Date)

	h, err = chain.Lookup(ctx, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "New Year", h.Name)

	h, err = chain.Lookup(ctx, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, h)
}
