package catalog

import (
	"context"
	"time"
)

// CodeSource is the read-only view of the billing code catalog.
type CodeSource interface {
	// ListCodes returns active codes of a modality whose validity covers date.
	ListCodes(ctx context.Context, modality Modality, date time.Time) ([]BillingCode, error)
	// GetCode returns a code by id, or nil when missing.
	GetCode(ctx context.Context, id string) (*BillingCode, error)
	// FindActiveCode returns the active code for (code, modality), or nil.
	FindActiveCode(ctx context.Context, code string, modality Modality) (*BillingCode, error)
}

// RateSource is the read-only view of the rate catalog.
type RateSource interface {
	// GetRate returns a table by id, or nil when missing.
	GetRate(ctx context.Context, id string) (*RateTable, error)
	// RateFor returns the active table covering date, or nil.
	RateFor(ctx context.Context, date time.Time) (*RateTable, error)
}
