package calendar

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
)

// Repository reads holidays from the holidays table.
type Repository struct {
	db *database.DB
}

// NewRepository constructs a holiday repository.
func NewRepository(db *database.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Lookup implements Calendar.
func (r *Repository) Lookup(ctx context.Context, date time.Time) (*Holiday, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("holiday repo: nil db")
	}
	day := civil.Date(date, nil)
	var h Holiday
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT holiday_date, name
FROM holidays
WHERE holiday_date = $1`, day).Scan(&h.Date, &h.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.Date = civil.Date(h.Date, nil)
	return &h, nil
}

// Upsert stores a holiday.
func (r *Repository) Upsert(ctx context.Context, h Holiday) error {
	if r == nil || r.db == nil {
		return errors.New("holiday repo: nil db")
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO holidays (holiday_date, name)
VALUES ($1, $2)
ON CONFLICT (holiday_date) DO UPDATE SET name = EXCLUDED.name`, civil.Date(h.Date, nil), h.Name)
	return err
}
