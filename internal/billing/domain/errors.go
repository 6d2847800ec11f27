package billing

import "guardduty-billing/internal/platform/fault"

var (
	// ErrInvalidInterval is returned when an interval does not end after it starts.
	ErrInvalidInterval = fault.New(fault.ErrValidation, "billing: invalid interval")
	// ErrInvalidGuardKind is returned for an unknown guard kind.
	ErrInvalidGuardKind = fault.New(fault.ErrValidation, "billing: invalid guard kind")
	// ErrNilRate is returned when calculating without a rate table.
	ErrNilRate = fault.New(fault.ErrValidation, "billing: nil rate table")
)
