package application

import (
	"context"
	"errors"
	"time"

	billing "guardduty-billing/internal/billing/domain"
	"guardduty-billing/internal/calendar"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

// Engine decomposes intervals in the day context of the guard that owns them.
type Engine struct {
	holidays calendar.Calendar
	loc      *time.Location
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLocation sets the business time zone used for hour alignment.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine constructs an engine over a holiday calendar.
func NewEngine(holidays calendar.Calendar, opts ...EngineOption) (*Engine, error) {
	if holidays == nil {
		return nil, errors.New("engine: nil calendar")
	}
	e := &Engine{holidays: holidays, loc: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Location returns the business time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Decompose splits [start, end) into total and nocturnal minutes and
// classifies guardDate. nominalStart drives the Saturday morning split.
func (e *Engine) Decompose(ctx context.Context, guardDate time.Time, nominalStart civil.TimeOfDay, start, end time.Time) (billing.Decomposition, error) {
	total, nocturnal, err := billing.SplitInterval(start.In(e.loc), end.In(e.loc))
	if err != nil {
		return billing.Decomposition{}, err
	}
	dayType, err := e.DayType(ctx, guardDate, nominalStart)
	if err != nil {
		return billing.Decomposition{}, err
	}
	return billing.Decomposition{TotalMinutes: total, NocturnalMinutes: nocturnal, DayType: dayType}, nil
}

// DayType classifies a guard date against the holiday calendar.
func (e *Engine) DayType(ctx context.Context, guardDate time.Time, nominalStart civil.TimeOfDay) (billing.DayType, error) {
	if guardDate.IsZero() {
		return "", fault.Validation("engine: guard date required")
	}
	date := civil.Date(guardDate, nil)
	holiday, err := e.holidays.Lookup(ctx, date)
	if err != nil {
		return "", fault.Storage("lookup holiday", err)
	}
	return billing.ClassifyDay(date, nominalStart.Hour(), holiday != nil), nil
}
