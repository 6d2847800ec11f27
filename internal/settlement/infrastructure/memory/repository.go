package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"guardduty-billing/internal/platform/memstore"
	settlement "guardduty-billing/internal/settlement/domain"
)

// Repository is an in-memory settlement.Repository taking part in store
// transactions.
type Repository struct {
	store       *memstore.Store
	settlements map[string]settlement.Settlement
}

// NewRepository constructs a repository registered with store.
func NewRepository(store *memstore.Store) *Repository {
	r := &Repository{store: store, settlements: make(map[string]settlement.Settlement)}
	store.Register(r)
	return r
}

// Snapshot implements memstore.Snapshotter.
func (r *Repository) Snapshot() func() {
	saved := make(map[string]settlement.Settlement, len(r.settlements))
	for id, s := range r.settlements {
		saved[id] = clone(s)
	}
	return func() { r.settlements = saved }
}

// LockPeriod implements settlement.Repository. Store transactions already
// run one at a time.
func (r *Repository) LockPeriod(context.Context, settlement.Period) error {
	return nil
}

// FindByPeriod implements settlement.Repository.
func (r *Repository) FindByPeriod(ctx context.Context, period settlement.Period) (*settlement.Settlement, error) {
	defer r.store.Lock(ctx)()
	for _, s := range r.settlements {
		if s.Period == period {
			found := clone(s)
			found.Details = nil
			return &found, nil
		}
	}
	return nil, nil
}

// Create implements settlement.Repository.
func (r *Repository) Create(ctx context.Context, s *settlement.Settlement) error {
	defer r.store.Lock(ctx)()
	for _, existing := range r.settlements {
		if existing.Period == s.Period {
			return fmt.Errorf("%w: %s", settlement.ErrDuplicatePeriod, s.Period)
		}
	}
	if _, exists := r.settlements[s.ID]; exists {
		return fmt.Errorf("settlement %s already exists", s.ID)
	}
	r.settlements[s.ID] = clone(*s)
	return nil
}

// Get implements settlement.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	defer r.store.Lock(ctx)()
	s, ok := r.settlements[id]
	if !ok {
		return nil, nil
	}
	found := clone(s)
	sort.SliceStable(found.Details, func(i, j int) bool {
		return found.Details[i].UserID < found.Details[j].UserID
	})
	return &found, nil
}

// GetForUpdate implements settlement.Repository.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*settlement.Settlement, error) {
	return r.Get(ctx, id)
}

// List implements settlement.Repository.
func (r *Repository) List(ctx context.Context) ([]settlement.Settlement, error) {
	defer r.store.Lock(ctx)()
	result := make([]settlement.Settlement, 0, len(r.settlements))
	for _, s := range r.settlements {
		header := s
		header.Details = nil
		result = append(result, header)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period > result[j].Period })
	return result, nil
}

// UpdateStatus implements settlement.Repository.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status settlement.Status, at time.Time) error {
	defer r.store.Lock(ctx)()
	s, ok := r.settlements[id]
	if !ok {
		return settlement.ErrSettlementNotFound
	}
	s.Status = status
	s.UpdatedAt = at.UTC()
	r.settlements[id] = s
	return nil
}

func clone(s settlement.Settlement) settlement.Settlement {
	s.Details = append([]settlement.Detail(nil), s.Details...)
	return s
}
