package incident

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists incidents, their assignments and state history.
// Lookups return nil, nil when the incident does not exist.
type Repository interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	// GetForUpdate reads an incident and holds it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Incident, error)
	// Update rewrites the editable fields and replaces the assignments.
	Update(ctx context.Context, inc *Incident) error
	UpdateState(ctx context.Context, id string, state State, at time.Time) error
	// SetAmounts stores assignment amounts keyed by assignment id.
	SetAmounts(ctx context.Context, incidentID string, amounts map[string]decimal.Decimal) error
	// Delete removes an incident and its assignments. History is kept.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]Incident, error)
	// ListForUpdate is List holding every returned incident.
	ListForUpdate(ctx context.Context, filter Filter) ([]Incident, error)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	History(ctx context.Context, incidentID string) ([]HistoryEntry, error)
}
