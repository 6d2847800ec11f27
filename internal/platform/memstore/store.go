package memstore

import (
	"context"
	"errors"
	"sync"

	"guardduty-billing/internal/platform/database"
)

// Snapshotter is implemented by in-memory repositories that take part in
// Store transactions. Snapshot captures current state and returns a function
// that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Store is a process-local unit of work shared by in-memory repositories.
// A transaction holds the store lock for its whole duration and restores
// every registered repository when fn fails.
type Store struct {
	mu           sync.Mutex
	participants []Snapshotter
	regMu        sync.Mutex
}

type txKey struct{}

// New constructs an empty store.
func New() *Store {
	return &Store{}
}

// Register adds a repository to the transaction scope.
func (s *Store) Register(p Snapshotter) {
	if s == nil || p == nil {
		return
	}
	s.regMu.Lock()
	s.participants = append(s.participants, p)
	s.regMu.Unlock()
}

// WithinTx implements database.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s == nil {
		return errors.New("memstore: nil store")
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}
	txCtx, hooks := database.WithCommitHooks(context.WithValue(ctx, txKey{}, s))
	if err := s.run(txCtx, fn); err != nil {
		return err
	}
	hooks.Run()
	return nil
}

// run holds the store lock while fn executes and restores every participant
// when fn fails or panics.
func (s *Store) run(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regMu.Lock()
	restores := make([]func(), 0, len(s.participants))
	for _, p := range s.participants {
		restores = append(restores, p.Snapshot())
	}
	s.regMu.Unlock()

	committed := false
	defer func() {
		if committed {
			return
		}
		for _, restore := range restores {
			restore()
		}
	}()
	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// Lock serializes a single repository call. Inside a transaction the store
// lock is already held and Lock is a no-op.
func (s *Store) Lock(ctx context.Context) (unlock func()) {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}
