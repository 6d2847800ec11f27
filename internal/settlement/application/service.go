package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/fault"
	settlement "guardduty-billing/internal/settlement/domain"
)

// Service reads settlements and moves them through payroll states.
type Service struct {
	tx    database.Transactor
	repo  settlement.Repository
	clock civil.Clock
	log   *zap.Logger
}

// NewService constructs a settlement query and status service.
func NewService(tx database.Transactor, repo settlement.Repository, clock civil.Clock, log *zap.Logger) (*Service, error) {
	if tx == nil {
		return nil, errors.New("settlement service: nil transactor")
	}
	if repo == nil {
		return nil, errors.New("settlement service: nil repository")
	}
	if clock == nil {
		clock = civil.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tx: tx, repo: repo, clock: clock, log: log.Named("settlement")}, nil
}

// Get returns a settlement with its details.
func (s *Service) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	found, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fault.Storage("get settlement", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", settlement.ErrSettlementNotFound, id)
	}
	return found, nil
}

// List returns settlement headers, newest period first.
func (s *Service) List(ctx context.Context) ([]settlement.Settlement, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fault.Storage("list settlements", err)
	}
	return items, nil
}

// ChangeStatus moves a settlement to status.
func (s *Service) ChangeStatus(ctx context.Context, id string, status settlement.Status, actorID string) (*settlement.Settlement, error) {
	if _, err := settlement.ParseStatus(string(status)); err != nil {
		return nil, err
	}
	var result *settlement.Settlement
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s", settlement.ErrSettlementNotFound, id)
		}
		if !current.Status.CanMoveTo(status) {
			return fmt.Errorf("%w: %s -> %s", settlement.ErrInvalidStatusTransition, current.Status, status)
		}
		now := s.clock.Now().UTC()
		if err := s.repo.UpdateStatus(ctx, id, status, now); err != nil {
			return err
		}
		s.log.Info("settlement status changed",
			zap.String("settlement_id", id),
			zap.String("from", string(current.Status)),
			zap.String("to", string(status)),
			zap.String("actor_id", actorID),
		)
		current.Status = status
		current.UpdatedAt = now
		result = current
		return nil
	})
	if err != nil {
		return nil, fault.Storage("change settlement status", err)
	}
	return result, nil
}
