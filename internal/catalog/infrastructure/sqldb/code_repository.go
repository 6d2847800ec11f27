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

const codeColumns = `id, code, description, kind, weekdays, window_start, window_end, factor,
	valid_from, valid_until, modality, status, created_at`

// CodeRepository reads billing codes.
type CodeRepository struct {
	db *database.DB
}

// NewCodeRepository constructs a repository.
func NewCodeRepository(db *database.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// ListCodes implements catalog.CodeSource.
func (r *CodeRepository) ListCodes(ctx context.Context, modality catalog.Modality, date time.Time) ([]catalog.BillingCode, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("code repo: nil db")
	}
	date = civil.Date(date, nil)
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT `+codeColumns+`
FROM billing_codes
WHERE status = $1 AND modality = $2 AND valid_from <= $3
	AND (valid_until IS NULL OR valid_until >= $3)
ORDER BY code ASC, id ASC`, catalog.StatusActive, string(modality), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.BillingCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetCode implements catalog.CodeSource.
func (r *CodeRepository) GetCode(ctx context.Context, id string) (*catalog.BillingCode, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("code repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+codeColumns+`
FROM billing_codes
WHERE id = $1`, id)
	code, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return code, err
}

// FindActiveCode implements catalog.CodeSource.
func (r *CodeRepository) FindActiveCode(ctx context.Context, code string, modality catalog.Modality) (*catalog.BillingCode, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("code repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+codeColumns+`
FROM billing_codes
WHERE code = $1 AND modality = $2 AND status = $3
LIMIT 1`, code, string(modality), catalog.StatusActive)
	found, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return found, err
}

// Upsert writes a billing code. Used by seeding and tests.
func (r *CodeRepository) Upsert(ctx context.Context, code catalog.BillingCode) error {
	if r == nil || r.db == nil {
		return errors.New("code repo: nil db")
	}
	if err := code.Validate(); err != nil {
		return err
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO billing_codes (`+codeColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	code = EXCLUDED.code,
	description = EXCLUDED.description,
	kind = EXCLUDED.kind,
	weekdays = EXCLUDED.weekdays,
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	factor = EXCLUDED.factor,
	valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until,
	modality = EXCLUDED.modality,
	status = EXCLUDED.status`,
		code.ID, code.Code, code.Description, string(code.Kind), code.Weekdays.String(),
		int(code.Window.Start), int(code.Window.End), code.Factor,
		civil.Date(code.Validity.From, nil), nullableDate(code.Validity.Until),
		string(code.Modality), code.Status, code.CreatedAt.UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCode(row rowScanner) (*catalog.BillingCode, error) {
	var (
		code        catalog.BillingCode
		kind        string
		weekdays    string
		windowStart int
		windowEnd   int
		validUntil  sql.NullTime
		modality    string
	)
	if err := row.Scan(&code.ID, &code.Code, &code.Description, &kind, &weekdays, &windowStart, &windowEnd,
		&code.Factor, &code.Validity.From, &validUntil, &modality, &code.Status, &code.CreatedAt); err != nil {
		return nil, err
	}
	set, err := catalog.ParseWeekdaySet(weekdays)
	if err != nil {
		return nil, err
	}
	code.Kind = catalog.Kind(kind)
	code.Weekdays = set
	code.Window = catalog.Window{Start: civil.TimeOfDay(windowStart), End: civil.TimeOfDay(windowEnd)}
	code.Validity.From = civil.Date(code.Validity.From, nil)
	if validUntil.Valid {
		until := civil.Date(validUntil.Time, nil)
		code.Validity.Until = &until
	}
	code.Modality = catalog.Modality(modality)
	code.CreatedAt = code.CreatedAt.UTC()
	return &code, nil
}

func nullableDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return civil.Date(*value, nil)
}
