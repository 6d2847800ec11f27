package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/platform/fault"
)

func TestParsePeriod(t *testing.T) {
	period, err := ParsePeriod(" 2025-02 ")
	require.NoError(t, err)
	assert.Equal(t, Period("2025-02"), period)

	first, last := period.Bounds()
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), last)

	for _, bad := range []string{"2025-13", "2025/02", "", "2025-02-01"} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
		assert.ErrorIs(t, err, fault.ErrValidation)
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanMoveTo(StatusApproved))
	assert.True(t, StatusPending.CanMoveTo(StatusCancelled))
	assert.True(t, StatusApproved.CanMoveTo(StatusPaid))
	assert.True(t, StatusApproved.CanMoveTo(StatusCancelled))
	assert.False(t, StatusPending.CanMoveTo(StatusPaid))
	assert.False(t, StatusPaid.CanMoveTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanMoveTo(StatusPending))

	status, err := ParseStatus("PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, status)
	_, err = ParseStatus("void")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
