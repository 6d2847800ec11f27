package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	billing "guardduty-billing/internal/billing/domain"
	catalog "guardduty-billing/internal/catalog/domain"
	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

// PriceInput describes one guard interval to price.
type PriceInput struct {
	// RateID pins a rate table. Empty selects the table covering GuardDate.
	RateID       string
	GuardDate    time.Time
	NominalStart civil.TimeOfDay
	Kind         billing.GuardKind
	Start        time.Time
	End          time.Time
}

// Quote is a priced interval.
type Quote struct {
	RateID        string                `json:"rate_id"`
	RateName      string                `json:"rate_name"`
	Date          time.Time             `json:"date"`
	Start         time.Time             `json:"start"`
	End           time.Time             `json:"end"`
	GuardKind     billing.GuardKind     `json:"guard_kind"`
	Decomposition billing.Decomposition `json:"decomposition"`
	billing.Amounts
}

// SimulateRequest is an on-demand pricing request over a time-of-day range.
type SimulateRequest struct {
	RateID    string
	Date      time.Time
	Start     civil.TimeOfDay
	End       civil.TimeOfDay
	GuardKind billing.GuardKind
}

// Service prices guard intervals against the rate catalog.
type Service struct {
	rates  catalog.RateSource
	engine *Engine
	log    *zap.Logger
}

// NewService constructs a pricing service.
func NewService(rates catalog.RateSource, engine *Engine, log *zap.Logger) (*Service, error) {
	if rates == nil {
		return nil, errors.New("billing service: nil rate source")
	}
	if engine == nil {
		return nil, errors.New("billing service: nil engine")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rates: rates, engine: engine, log: log.Named("billing")}, nil
}

// Engine returns the decomposition engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Simulate prices a time-of-day range on date. An end at or before start
// continues into the next day.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (quote *Quote, err error) {
	defer func() { metrics.IncRateSimulation(metrics.Result(err)) }()

	if req.Date.IsZero() {
		return nil, fault.Validation("simulate: date required")
	}
	if !req.Start.Valid() || !req.End.Valid() {
		return nil, fault.Validation("simulate: invalid time of day")
	}
	kind, err := billing.ParseGuardKind(string(req.GuardKind))
	if err != nil {
		return nil, err
	}
	loc := s.engine.Location()
	start := civil.At(req.Date, req.Start, loc)
	end := civil.At(req.Date, req.End, loc)
	if !end.After(start) {
		end = civil.At(req.Date.AddDate(0, 0, 1), req.End, loc)
	}
	return s.Price(ctx, PriceInput{
		RateID:       req.RateID,
		GuardDate:    req.Date,
		NominalStart: req.Start,
		Kind:         kind,
		Start:        start,
		End:          end,
	})
}

// Price decomposes and prices one interval.
func (s *Service) Price(ctx context.Context, in PriceInput) (*Quote, error) {
	kind, err := billing.ParseGuardKind(string(in.Kind))
	if err != nil {
		return nil, err
	}
	rate, err := s.resolveRate(ctx, in.RateID, in.GuardDate)
	if err != nil {
		return nil, err
	}
	decomposition, err := s.engine.Decompose(ctx, in.GuardDate, in.NominalStart, in.Start, in.End)
	if err != nil {
		return nil, err
	}
	amounts, err := billing.Calculate(rate, decomposition, kind)
	if err != nil {
		return nil, err
	}
	s.log.Debug("priced interval",
		zap.String("rate_id", rate.ID),
		zap.String("day_type", string(decomposition.DayType)),
		zap.Int("total_minutes", decomposition.TotalMinutes),
		zap.Int("nocturnal_minutes", decomposition.NocturnalMinutes),
		zap.String("total", amounts.Total.StringFixed(2)),
	)
	return &Quote{
		RateID:        rate.ID,
		RateName:      rate.Name,
		Date:          civil.Date(in.GuardDate, nil),
		Start:         in.Start,
		End:           in.End,
		GuardKind:     kind,
		Decomposition: decomposition,
		Amounts:       amounts,
	}, nil
}

func (s *Service) resolveRate(ctx context.Context, rateID string, date time.Time) (*catalog.RateTable, error) {
	if rateID != "" {
		rate, err := s.rates.GetRate(ctx, rateID)
		if err != nil {
			return nil, fault.Storage("get rate", err)
		}
		if rate == nil {
			return nil, fmt.Errorf("%w: %s", catalog.ErrRateNotFound, rateID)
		}
		return rate, nil
	}
	rate, err := s.rates.RateFor(ctx, civil.Date(date, nil))
	if err != nil {
		return nil, fault.Storage("rate for date", err)
	}
	if rate == nil {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNoRateForDate, date.Format(civil.DateLayout))
	}
	return rate, nil
}
