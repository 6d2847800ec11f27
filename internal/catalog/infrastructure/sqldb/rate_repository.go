package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	catalog "guardduty-billing/internal/catalog/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
)

const rateColumns = `id, name, passive_guard_value, active_hour_value, nocturnal_surcharge_weekday,
	nocturnal_surcharge_non_working, valid_from, valid_until, status, created_at`

// RateRepository reads rate tables.
type RateRepository struct {
	db *database.DB
}

// NewRateRepository constructs a repository.
func NewRateRepository(db *database.DB) *RateRepository {
	return &RateRepository{db: db}
}

// GetRate implements catalog.RateSource.
func (r *RateRepository) GetRate(ctx context.Context, id string) (*catalog.RateTable, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rate repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+rateColumns+`
FROM rate_tables
WHERE id = $1`, id)
	rate, err := scanRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rate, err
}

// RateFor implements catalog.RateSource. Overlapping tables resolve to the
// most recently created one.
func (r *RateRepository) RateFor(ctx context.Context, date time.Time) (*catalog.RateTable, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rate repo: nil db")
	}
	date = civil.Date(date, nil)
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+rateColumns+`
FROM rate_tables
WHERE status = $1 AND valid_from <= $2
	AND (valid_until IS NULL OR valid_until >= $2)
ORDER BY created_at DESC, id DESC
LIMIT 1`, catalog.StatusActive, date)
	rate, err := scanRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rate, err
}

// Upsert writes a rate table. Used by seeding and tests.
func (r *RateRepository) Upsert(ctx context.Context, rate catalog.RateTable) error {
	if r == nil || r.db == nil {
		return errors.New("rate repo: nil db")
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO rate_tables (`+rateColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	passive_guard_value = EXCLUDED.passive_guard_value,
	active_hour_value = EXCLUDED.active_hour_value,
	nocturnal_surcharge_weekday = EXCLUDED.nocturnal_surcharge_weekday,
	nocturnal_surcharge_non_working = EXCLUDED.nocturnal_surcharge_non_working,
	valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until,
	status = EXCLUDED.status`,
		rate.ID, rate.Name, rate.PassiveGuardValue, rate.ActiveHourValue, rate.NocturnalSurchargeWeekday,
		rate.NocturnalSurchargeNonWorking, civil.Date(rate.Validity.From, nil), nullableDate(rate.Validity.Until),
		rate.Status, rate.CreatedAt.UTC())
	return err
}

func scanRate(row rowScanner) (*catalog.RateTable, error) {
	var (
		rate       catalog.RateTable
		validUntil sql.NullTime
	)
	if err := row.Scan(&rate.ID, &rate.Name, &rate.PassiveGuardValue, &rate.ActiveHourValue,
		&rate.NocturnalSurchargeWeekday, &rate.NocturnalSurchargeNonWorking, &rate.Validity.From, &validUntil,
		&rate.Status, &rate.CreatedAt); err != nil {
		return nil, err
	}
	rate.Validity.From = civil.Date(rate.Validity.From, nil)
	if validUntil.Valid {
		until := civil.Date(validUntil.Time, nil)
		rate.Validity.Until = &until
	}
	rate.CreatedAt = rate.CreatedAt.UTC()
	return &rate, nil
}
