package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
	settlement "guardduty-billing/internal/settlement/domain"
)

const headerColumns = `id, period, status, generated_at, generated_by, total_minutes, total_amount, updated_at`

// Repository persists settlements in SQL.
type Repository struct {
	db *database.DB
}

// NewRepository constructs a settlement repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// LockPeriod implements settlement.Repository.
func (r *Repository) LockPeriod(ctx context.Context, period settlement.Period) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	return r.db.LockKey(ctx, "settlement:"+string(period))
}

// FindByPeriod implements settlement.Repository.
func (r *Repository) FindByPeriod(ctx context.Context, period settlement.Period) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+headerColumns+`
FROM settlements
WHERE period = $1`, string(period))
	s, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create implements settlement.Repository.
func (r *Repository) Create(ctx context.Context, s *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO settlements (`+headerColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			s.ID, string(s.Period), string(s.Status), s.GeneratedAt.UTC(), s.GeneratedBy,
			s.TotalMinutes, s.TotalAmount, s.UpdatedAt.UTC())
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", settlement.ErrDuplicatePeriod, s.Period)
		}
		if err != nil {
			return err
		}
		for _, d := range s.Details {
			if _, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO settlement_details (id, settlement_id, incident_id, guard_id, user_id, aggregation_date,
	incident_count, total_minutes, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				d.ID, s.ID, d.IncidentID, d.GuardID, d.UserID, civil.Date(d.AggregationDate, nil),
				d.IncidentCount, d.TotalMinutes, d.TotalAmount); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get implements settlement.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate implements settlement.Repository.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	return r.get(ctx, id, r.db.ForUpdate())
}

func (r *Repository) get(ctx context.Context, id, suffix string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+headerColumns+`
FROM settlements
WHERE id = $1`+suffix, id)
	s, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Details, err = r.details(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List implements settlement.Repository.
func (r *Repository) List(ctx context.Context) ([]settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT `+headerColumns+`
FROM settlements
ORDER BY period DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// UpdateStatus implements settlement.Repository.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status settlement.Status, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, `
UPDATE settlements SET status = $1, updated_at = $2 WHERE id = $3`, string(status), at.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrSettlementNotFound
	}
	return nil
}

func (r *Repository) details(ctx context.Context, settlementID string) ([]settlement.Detail, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id, settlement_id, incident_id, guard_id, user_id, aggregation_date, incident_count,
	total_minutes, total_amount
FROM settlement_details
WHERE settlement_id = $1
ORDER BY user_id ASC`, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Detail
	for rows.Next() {
		var d settlement.Detail
		if err := rows.Scan(&d.ID, &d.SettlementID, &d.IncidentID, &d.GuardID, &d.UserID,
			&d.AggregationDate, &d.IncidentCount, &d.TotalMinutes, &d.TotalAmount); err != nil {
			return nil, err
		}
		d.AggregationDate = civil.Date(d.AggregationDate, nil)
		result = append(result, d)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var (
		s      settlement.Settlement
		period string
		status string
	)
	if err := row.Scan(&s.ID, &period, &status, &s.GeneratedAt, &s.GeneratedBy,
		&s.TotalMinutes, &s.TotalAmount, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Period = settlement.Period(period)
	s.Status = settlement.Status(status)
	s.GeneratedAt = s.GeneratedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
