package incident

import "guardduty-billing/internal/platform/fault"

var (
	// ErrValidation is returned for malformed incident input.
	ErrValidation = fault.New(fault.ErrValidation, "incident: invalid input")
	// ErrGuardDateMismatch is returned when an incident date differs from its guard date.
	ErrGuardDateMismatch = fault.New(fault.ErrValidation, "incident: date does not match guard date")
	// ErrUnknownCode is returned when an explicit billing code does not resolve.
	ErrUnknownCode = fault.New(fault.ErrValidation, "incident: unknown billing code")
	// ErrNotFound is returned when an incident does not exist.
	ErrNotFound = fault.New(fault.ErrNotFound, "incident: not found")
	// ErrInvalidTransition is returned for moves outside the state machine.
	ErrInvalidTransition = fault.New(fault.ErrConflict, "incident: invalid state transition")
	// ErrIncidentAlreadySettled is returned when mutating a settled incident.
	ErrIncidentAlreadySettled = fault.New(fault.ErrPrecondition, "incident: already settled")
)
