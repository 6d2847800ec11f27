package catalog

import "guardduty-billing/internal/platform/fault"

var (
	// ErrInvalidModality is returned when a modality tag is malformed.
	ErrInvalidModality = fault.New(fault.ErrValidation, "catalog: invalid modality")
	// ErrCodeNotFound is returned when a billing code does not exist.
	ErrCodeNotFound = fault.New(fault.ErrNotFound, "catalog: billing code not found")
	// ErrRateNotFound is returned when no rate table matches the request.
	ErrRateNotFound = fault.New(fault.ErrNotFound, "catalog: rate table not found")
	// ErrNoRateForDate is returned when no active rate table covers a date.
	ErrNoRateForDate = fault.New(fault.ErrValidation, "catalog: no rate table covers date")
)
