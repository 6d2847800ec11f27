package settlement

import (
	"context"
	"time"
)

// Repository persists settlements. Lookups return nil, nil when missing.
type Repository interface {
	// LockPeriod serializes generation of one period until the surrounding
	// transaction ends.
	LockPeriod(ctx context.Context, period Period) error
	FindByPeriod(ctx context.Context, period Period) (*Settlement, error)
	// Create stores the header and details. A taken period yields
	// ErrDuplicatePeriod.
	Create(ctx context.Context, s *Settlement) error
	// Get returns a settlement with its details.
	Get(ctx context.Context, id string) (*Settlement, error)
	GetForUpdate(ctx context.Context, id string) (*Settlement, error)
	// List returns headers, newest period first.
	List(ctx context.Context) ([]Settlement, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}
