package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	billingapp "guardduty-billing/internal/billing/application"
	catalog "guardduty-billing/internal/catalog/domain"
	guard "guardduty-billing/internal/guard/domain"
	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/observability/logger"
	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/observability/tracing"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/fault"
	settlement "guardduty-billing/internal/settlement/domain"
)

// IncidentPort is the capability settlement holds over incidents.
type IncidentPort interface {
	ListApproved(ctx context.Context, from, to time.Time) ([]incident.Incident, error)
	RecordAmounts(ctx context.Context, incidentID string, amounts map[string]decimal.Decimal) error
	MarkSettled(ctx context.Context, incidentID, actorID, notes string) error
}

// Pricer prices one guard interval.
type Pricer interface {
	Price(ctx context.Context, in billingapp.PriceInput) (*billingapp.Quote, error)
}

// Generator builds the settlement of a period exactly once.
type Generator struct {
	tx        database.Transactor
	repo      settlement.Repository
	incidents IncidentPort
	guards    guard.Directory
	codes     catalog.CodeSource
	pricer    Pricer
	clock     civil.Clock
	newID     func() string
	loc       *time.Location
	log       *zap.Logger
}

// GeneratorOption customizes the generator.
type GeneratorOption func(*Generator)

// WithClock assigns a clock.
func WithClock(clock civil.Clock) GeneratorOption {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) GeneratorOption {
	return func(g *Generator) {
		if newID != nil {
			g.newID = newID
		}
	}
}

// WithLocation sets the business time zone.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(log *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGenerator constructs a settlement generator.
func NewGenerator(tx database.Transactor, repo settlement.Repository, incidents IncidentPort, guards guard.Directory, codes catalog.CodeSource, pricer Pricer, opts ...GeneratorOption) (*Generator, error) {
	if tx == nil {
		return nil, errors.New("settlement: nil transactor")
	}
	if repo == nil {
		return nil, errors.New("settlement: nil repository")
	}
	if incidents == nil {
		return nil, errors.New("settlement: nil incident port")
	}
	if guards == nil {
		return nil, errors.New("settlement: nil guard directory")
	}
	if codes == nil || pricer == nil {
		return nil, errors.New("settlement: nil pricing")
	}
	g := &Generator{
		tx:        tx,
		repo:      repo,
		incidents: incidents,
		guards:    guards,
		codes:     codes,
		pricer:    pricer,
		clock:     civil.SystemClock{},
		newID:     uuid.NewString,
		loc:       time.UTC,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named("settlement")
	return g, nil
}

type userGroup struct {
	userID    string
	incidents []incident.Incident
}

// Generate settles every approved incident whose guard date falls in period.
// The whole batch commits or rolls back as one unit.
func (g *Generator) Generate(ctx context.Context, rawPeriod, actorID string) (result *settlement.Settlement, err error) {
	began := time.Now()
	ctx, span := tracing.Start(ctx, "settlement.generate", attribute.String("settlement.period", rawPeriod))
	defer func() {
		tracing.End(span, err)
		metrics.ObserveSettlementGenerate(metrics.Result(err), time.Since(began))
	}()

	period, err := settlement.ParsePeriod(rawPeriod)
	if err != nil {
		return nil, err
	}
	first, last := period.Bounds()

	err = g.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := g.repo.LockPeriod(ctx, period); err != nil {
			return err
		}
		existing, err := g.repo.FindByPeriod(ctx, period)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", settlement.ErrDuplicatePeriod, period)
		}

		approved, err := g.incidents.ListApproved(ctx, first, last)
		if err != nil {
			return err
		}
		if len(approved) == 0 {
			return fmt.Errorf("%w: %s", settlement.ErrNothingToSettle, period)
		}

		groups, err := g.groupByUser(ctx, approved)
		if err != nil {
			return err
		}

		now := g.clock.Now().UTC()
		header := &settlement.Settlement{
			ID:          g.newID(),
			Period:      period,
			Status:      settlement.StatusPending,
			GeneratedAt: now,
			GeneratedBy: actorID,
			TotalAmount: decimal.Zero,
			UpdatedAt:   now,
		}
		for _, group := range groups {
			detail := settlement.Detail{
				ID:              g.newID(),
				SettlementID:    header.ID,
				IncidentID:      group.incidents[0].ID,
				GuardID:         group.incidents[0].GuardID,
				UserID:          group.userID,
				AggregationDate: civil.Date(now, g.loc),
				IncidentCount:   len(group.incidents),
				TotalAmount:     decimal.Zero,
			}
			for _, inc := range group.incidents {
				detail.TotalMinutes += inc.TotalMinutes()
				detail.TotalAmount = detail.TotalAmount.Add(inc.TotalAmount())
			}
			header.TotalMinutes += detail.TotalMinutes
			header.TotalAmount = header.TotalAmount.Add(detail.TotalAmount)
			header.Details = append(header.Details, detail)
		}

		if err := g.repo.Create(ctx, header); err != nil {
			return err
		}
		notes := "settlement " + string(period)
		for _, group := range groups {
			for _, inc := range group.incidents {
				if err := g.incidents.MarkSettled(ctx, inc.ID, actorID, notes); err != nil {
					return err
				}
			}
		}
		result = header
		return nil
	})
	if err != nil {
		return nil, fault.Storage("generate settlement", err)
	}
	logger.With(ctx, g.log).Info("settlement generated",
		zap.String("settlement_id", result.ID),
		zap.String("period", string(period)),
		zap.Int("details", len(result.Details)),
		zap.String("total_amount", result.TotalAmount.StringFixed(2)),
	)
	return result, nil
}

// groupByUser prices unpriced assignments and groups incidents by the
// guard's user in first-seen order.
func (g *Generator) groupByUser(ctx context.Context, incidents []incident.Incident) ([]*userGroup, error) {
	guards := make(map[string]*guard.Guard)
	byUser := make(map[string]*userGroup)
	var groups []*userGroup

	for i := range incidents {
		inc := &incidents[i]
		gd, ok := guards[inc.GuardID]
		if !ok {
			found, err := g.guards.GetGuard(ctx, inc.GuardID)
			if err != nil {
				return nil, err
			}
			if found == nil {
				return nil, fmt.Errorf("%w: %s", guard.ErrNotFound, inc.GuardID)
			}
			gd = found
			guards[inc.GuardID] = gd
		}
		if err := g.price(ctx, inc, gd); err != nil {
			return nil, err
		}
		group, ok := byUser[gd.UserID]
		if !ok {
			group = &userGroup{userID: gd.UserID}
			byUser[gd.UserID] = group
			groups = append(groups, group)
		}
		group.incidents = append(group.incidents, *inc)
	}
	return groups, nil
}

// price fills missing assignment amounts as the unrounded incident total
// scaled by the code factor, and persists them.
func (g *Generator) price(ctx context.Context, inc *incident.Incident, gd *guard.Guard) error {
	if inc.Priced() {
		return nil
	}
	quote, err := g.pricer.Price(ctx, billingapp.PriceInput{
		GuardDate:    gd.Date,
		NominalStart: gd.NominalStart(civil.TimeOfDayOf(inc.Start.In(g.loc))),
		Kind:         gd.Kind,
		Start:        inc.Start,
		End:          inc.End,
	})
	if err != nil {
		return fmt.Errorf("incident %s: %w", inc.ID, err)
	}
	amounts := make(map[string]decimal.Decimal)
	for i, a := range inc.Assignments {
		if a.Amount != nil {
			continue
		}
		code, err := g.codes.GetCode(ctx, a.BillingCodeID)
		if err != nil {
			return err
		}
		if code == nil {
			return fmt.Errorf("%w: %s", catalog.ErrCodeNotFound, a.BillingCodeID)
		}
		amount := quote.Exact.Mul(code.Factor).Round(2)
		amounts[a.ID] = amount
		inc.Assignments[i].Amount = &amount
	}
	return g.incidents.RecordAmounts(ctx, inc.ID, amounts)
}
