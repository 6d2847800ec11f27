package calendar

import (
	"context"
	"sync"
	"time"

	"guardduty-billing/internal/platform/civil"
)

// Holiday is a non-working calendar date.
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// Calendar answers whether a date is a holiday.
type Calendar interface {
	Lookup(ctx context.Context, date time.Time) (*Holiday, error)
}

// Static is an immutable in-memory calendar.
type Static struct {
	days map[time.Time]Holiday
}

// NewStatic builds a calendar from a holiday list.
func NewStatic(holidays ...Holiday) *Static {
	days := make(map[time.Time]Holiday, len(holidays))
	for _, h := range holidays {
		h.Date = civil.Date(h.Date, nil)
		days[h.Date] = h
	}
	return &Static{days: days}
}

// Lookup implements Calendar.
func (s *Static) Lookup(_ context.Context, date time.Time) (*Holiday, error) {
	if s == nil {
		return nil, nil
	}
	h, ok := s.days[civil.Date(date, nil)]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// Len returns the number of holidays.
func (s *Static) Len() int {
	if s == nil {
		return 0
	}
	return len(s.days)
}

// Chain consults calendars in order and returns the first hit.
type Chain []Calendar

// Lookup implements Calendar.
func (c Chain) Lookup(ctx context.Context, date time.Time) (*Holiday, error) {
	for _, cal := range c {
		if cal == nil {
			continue
		}
		h, err := cal.Lookup(ctx, date)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
	}
	return nil, nil
}

type cacheEntry struct {
	holiday *Holiday
	expires time.Time
}

// Cached memoizes lookups of another calendar for ttl.
type Cached struct {
	next  Calendar
	ttl   time.Duration
	clock civil.Clock

	mu      sync.RWMutex
	entries map[time.Time]cacheEntry
}

// NewCached wraps next. A non-positive ttl disables caching.
func NewCached(next Calendar, ttl time.Duration, clock civil.Clock) *Cached {
	if clock == nil {
		clock = civil.SystemClock{}
	}
	return &Cached{next: next, ttl: ttl, clock: clock, entries: make(map[time.Time]cacheEntry)}
}

// Lookup implements Calendar.
func (c *Cached) Lookup(ctx context.Context, date time.Time) (*Holiday, error) {
	if c == nil || c.next == nil {
		return nil, nil
	}
	if c.ttl <= 0 {
		return c.next.Lookup(ctx, date)
	}
	key := civil.Date(date, nil)
	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.holiday, nil
	}

	h, err := c.next.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{holiday: h, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return h, nil
}
