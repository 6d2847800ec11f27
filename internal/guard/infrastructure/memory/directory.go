package memory

import (
	"context"
	"sync"

	guard "guardduty-billing/internal/guard/domain"
	"guardduty-billing/internal/platform/civil"
)

// Directory is an in-memory guard.Directory.
type Directory struct {
	mu     sync.RWMutex
	guards map[string]guard.Guard
}

// NewDirectory constructs a directory seeded with guards.
func NewDirectory(guards ...guard.Guard) *Directory {
	d := &Directory{guards: make(map[string]guard.Guard, len(guards))}
	for _, g := range guards {
		d.Put(g)
	}
	return d
}

// Put adds or replaces a guard.
func (d *Directory) Put(g guard.Guard) {
	g.Date = civil.Date(g.Date, nil)
	d.mu.Lock()
	d.guards[g.ID] = g
	d.mu.Unlock()
}

// GetGuard implements guard.Directory.
func (d *Directory) GetGuard(_ context.Context, id string) (*guard.Guard, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.guards[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}
