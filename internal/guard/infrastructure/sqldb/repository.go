package sqldb

import (
	"context"
	"database/sql"
	"errors"

	billing "guardduty-billing/internal/billing/domain"
	guard "guardduty-billing/internal/guard/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
)

// Repository reads guards from the guards table.
type Repository struct {
	db *database.DB
}

// NewRepository constructs a guard repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetGuard implements guard.Directory.
func (r *Repository) GetGuard(ctx context.Context, id string) (*guard.Guard, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("guard repo: nil db")
	}
	var (
		g           guard.Guard
		kind        string
		startMinute sql.NullInt64
	)
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT id, guard_date, user_id, kind, start_minute
FROM guards
WHERE id = $1`, id).Scan(&g.ID, &g.Date, &g.UserID, &kind, &startMinute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.Date = civil.Date(g.Date, nil)
	g.Kind = billing.GuardKind(kind)
	if startMinute.Valid {
		start := civil.TimeOfDay(startMinute.Int64)
		g.StartTime = &start
	}
	return &g, nil
}

// Upsert stores a guard. Used by seeding and tests.
func (r *Repository) Upsert(ctx context.Context, g guard.Guard) error {
	if r == nil || r.db == nil {
		return errors.New("guard repo: nil db")
	}
	kind, err := billing.ParseGuardKind(string(g.Kind))
	if err != nil {
		return err
	}
	var startMinute any
	if g.StartTime != nil {
		startMinute = int(*g.StartTime)
	}
	_, err = r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO guards (id, guard_date, user_id, kind, start_minute)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	guard_date = EXCLUDED.guard_date,
	user_id = EXCLUDED.user_id,
	kind = EXCLUDED.kind,
	start_minute = EXCLUDED.start_minute`,
		g.ID, civil.Date(g.Date, nil), g.UserID, string(kind), startMinute)
	return err
}
