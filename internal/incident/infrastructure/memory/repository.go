package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/platform/memstore"
)

// Repository is an in-memory incident.Repository taking part in store
// transactions.
type Repository struct {
	store     *memstore.Store
	incidents map[string]incident.Incident
	history   []incident.HistoryEntry
}

// NewRepository constructs a repository registered with store.
func NewRepository(store *memstore.Store) *Repository {
	r := &Repository{store: store, incidents: make(map[string]incident.Incident)}
	store.Register(r)
	return r
}

// Snapshot implements memstore.Snapshotter.
func (r *Repository) Snapshot() func() {
	incidents := make(map[string]incident.Incident, len(r.incidents))
	for id, inc := range r.incidents {
		incidents[id] = clone(inc)
	}
	history := append([]incident.HistoryEntry(nil), r.history...)
	return func() {
		r.incidents = incidents
		r.history = history
	}
}

// Create implements incident.Repository.
func (r *Repository) Create(ctx context.Context, inc *incident.Incident) error {
	defer r.store.Lock(ctx)()
	if _, exists := r.incidents[inc.ID]; exists {
		return fmt.Errorf("incident %s already exists", inc.ID)
	}
	r.incidents[inc.ID] = clone(*inc)
	return nil
}

// Get implements incident.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*incident.Incident, error) {
	defer r.store.Lock(ctx)()
	inc, ok := r.incidents[id]
	if !ok {
		return nil, nil
	}
	found := clone(inc)
	return &found, nil
}

// GetForUpdate implements incident.Repository. The store transaction
// already serializes writers.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*incident.Incident, error) {
	return r.Get(ctx, id)
}

// Update implements incident.Repository.
func (r *Repository) Update(ctx context.Context, inc *incident.Incident) error {
	defer r.store.Lock(ctx)()
	if _, ok := r.incidents[inc.ID]; !ok {
		return incident.ErrNotFound
	}
	r.incidents[inc.ID] = clone(*inc)
	return nil
}

// UpdateState implements incident.Repository.
func (r *Repository) UpdateState(ctx context.Context, id string, state incident.State, at time.Time) error {
	defer r.store.Lock(ctx)()
	inc, ok := r.incidents[id]
	if !ok {
		return incident.ErrNotFound
	}
	inc.State = state
	inc.UpdatedAt = at
	r.incidents[id] = inc
	return nil
}

// SetAmounts implements incident.Repository.
func (r *Repository) SetAmounts(ctx context.Context, incidentID string, amounts map[string]decimal.Decimal) error {
	defer r.store.Lock(ctx)()
	inc, ok := r.incidents[incidentID]
	if !ok {
		return incident.ErrNotFound
	}
	inc = clone(inc)
	for i, a := range inc.Assignments {
		if amount, ok := amounts[a.ID]; ok {
			value := amount
			inc.Assignments[i].Amount = &value
		}
	}
	r.incidents[incidentID] = inc
	return nil
}

// Delete implements incident.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	defer r.store.Lock(ctx)()
	delete(r.incidents, id)
	return nil
}

// List implements incident.Repository.
func (r *Repository) List(ctx context.Context, filter incident.Filter) ([]incident.Incident, error) {
	defer r.store.Lock(ctx)()
	result := make([]incident.Incident, 0)
	for _, inc := range r.incidents {
		if matches(inc, filter) {
			result = append(result, clone(inc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListForUpdate implements incident.Repository.
func (r *Repository) ListForUpdate(ctx context.Context, filter incident.Filter) ([]incident.Incident, error) {
	return r.List(ctx, filter)
}

// AppendHistory implements incident.Repository.
func (r *Repository) AppendHistory(ctx context.Context, entry incident.HistoryEntry) error {
	defer r.store.Lock(ctx)()
	r.history = append(r.history, entry)
	return nil
}

// History implements incident.Repository.
func (r *Repository) History(ctx context.Context, incidentID string) ([]incident.HistoryEntry, error) {
	defer r.store.Lock(ctx)()
	var entries []incident.HistoryEntry
	for _, entry := range r.history {
		if entry.IncidentID == incidentID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func matches(inc incident.Incident, filter incident.Filter) bool {
	if filter.State != "" && inc.State != filter.State {
		return false
	}
	if filter.GuardID != "" && inc.GuardID != filter.GuardID {
		return false
	}
	if filter.From != nil && inc.Date.Before(*filter.From) {
		return false
	}
	if filter.To != nil && inc.Date.After(*filter.To) {
		return false
	}
	return true
}

func clone(inc incident.Incident) incident.Incident {
	inc.Assignments = append([]incident.CodeAssignment(nil), inc.Assignments...)
	return inc
}
