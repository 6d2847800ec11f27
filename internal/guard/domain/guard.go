package guard

import (
	"context"
	"time"

	billing "guardduty-billing/internal/billing/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

// ErrNotFound is returned when a guard reference does not resolve.
var ErrNotFound = fault.New(fault.ErrNotFound, "guard: not found")

// Guard is one on-call assignment of a user to a calendar date.
type Guard struct {
	ID     string            `json:"id"`
	Date   time.Time         `json:"date"`
	UserID string            `json:"user_id"`
	Kind   billing.GuardKind `json:"kind"`
	// StartTime is the nominal start of the guard shift, when known.
	StartTime *civil.TimeOfDay `json:"start_time,omitempty"`
}

// NominalStart returns the guard start time of day, or fallback when the
// guard has none.
func (g Guard) NominalStart(fallback civil.TimeOfDay) civil.TimeOfDay {
	if g.StartTime != nil {
		return *g.StartTime
	}
	return fallback
}

// Directory resolves guards. It returns nil, nil when the guard is unknown.
type Directory interface {
	GetGuard(ctx context.Context, id string) (*Guard, error)
}
