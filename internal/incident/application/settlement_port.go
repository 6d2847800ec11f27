package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/observability/tracing"
)

// SettlementPort is the narrow capability settlement generation holds over
// incidents. Its calls are meant to run inside the generator's transaction.
type SettlementPort struct {
	svc *Service
}

// SettlementPort returns the settlement capability of the service.
func (s *Service) SettlementPort() *SettlementPort {
	return &SettlementPort{svc: s}
}

// ListApproved returns approved incidents whose guard date is within
// [from, to], holding them until the transaction ends.
func (p *SettlementPort) ListApproved(ctx context.Context, from, to time.Time) ([]incident.Incident, error) {
	return p.svc.repo.ListForUpdate(ctx, incident.Filter{
		State: incident.StateApproved,
		From:  &from,
		To:    &to,
	})
}

// RecordAmounts stores computed assignment amounts.
func (p *SettlementPort) RecordAmounts(ctx context.Context, incidentID string, amounts map[string]decimal.Decimal) error {
	if len(amounts) == 0 {
		return nil
	}
	return p.svc.repo.SetAmounts(ctx, incidentID, amounts)
}

// MarkSettled applies the approved -> settled transition.
func (p *SettlementPort) MarkSettled(ctx context.Context, incidentID, actorID, notes string) (err error) {
	ctx, span := tracing.Start(ctx, "incident.mark_settled", attribute.String("incident.id", incidentID))
	defer func() { tracing.End(span, err) }()

	current, err := p.svc.load(ctx, incidentID)
	if err != nil {
		return err
	}
	return p.svc.transition(ctx, current, incident.StateSettled, actorID, notes)
}
