package settlement

import "guardduty-billing/internal/platform/fault"

var (
	// ErrInvalidPeriod is returned when a period is not a YYYY-MM month.
	ErrInvalidPeriod = fault.New(fault.ErrValidation, "settlement: invalid period")
	// ErrInvalidStatus is returned for an unknown settlement status.
	ErrInvalidStatus = fault.New(fault.ErrValidation, "settlement: invalid status")
	// ErrDuplicatePeriod is returned when the period already has a settlement.
	ErrDuplicatePeriod = fault.New(fault.ErrConflict, "settlement: period already settled")
	// ErrInvalidStatusTransition is returned for a disallowed status change.
	ErrInvalidStatusTransition = fault.New(fault.ErrConflict, "settlement: invalid status transition")
	// ErrNothingToSettle is returned when the period has no approved incidents.
	ErrNothingToSettle = fault.New(fault.ErrPrecondition, "settlement: nothing to settle")
	// ErrSettlementNotFound is returned when a settlement is not found.
	ErrSettlementNotFound = fault.New(fault.ErrNotFound, "settlement: not found")
)
