package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
)

const incidentColumns = `id, guard_id, incident_date, start_at, end_at, description, observations,
	modality, state, created_by, created_at, updated_at`

// Repository persists incidents in SQL.
type Repository struct {
	db *database.DB
}

// NewRepository constructs an incident repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create implements incident.Repository.
func (r *Repository) Create(ctx context.Context, inc *incident.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO incidents (`+incidentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			inc.ID, inc.GuardID, civil.Date(inc.Date, nil), inc.Start.UTC(), inc.End.UTC(),
			inc.Description, nullableString(inc.Observations), inc.Modality, string(inc.State),
			inc.CreatedBy, inc.CreatedAt.UTC(), inc.UpdatedAt.UTC())
		if err != nil {
			return err
		}
		return r.insertAssignments(ctx, inc.ID, inc.Assignments)
	})
}

// Get implements incident.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*incident.Incident, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate implements incident.Repository.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	return r.get(ctx, id, r.db.ForUpdate())
}

func (r *Repository) get(ctx context.Context, id, suffix string) (*incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+incidentColumns+`
FROM incidents
WHERE id = $1`+suffix, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inc.Assignments, err = r.assignments(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Update implements incident.Repository.
func (r *Repository) Update(ctx context.Context, inc *incident.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		res, err := r.db.Conn(ctx).ExecContext(ctx, `
UPDATE incidents
SET start_at = $1, end_at = $2, description = $3, observations = $4, modality = $5, updated_at = $6
WHERE id = $7`,
			inc.Start.UTC(), inc.End.UTC(), inc.Description, nullableString(inc.Observations),
			inc.Modality, inc.UpdatedAt.UTC(), inc.ID)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if _, err := r.db.Conn(ctx).ExecContext(ctx,
			`DELETE FROM incident_code_assignments WHERE incident_id = $1`, inc.ID); err != nil {
			return err
		}
		return r.insertAssignments(ctx, inc.ID, inc.Assignments)
	})
}

// UpdateState implements incident.Repository.
func (r *Repository) UpdateState(ctx context.Context, id string, state incident.State, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	res, err := r.db.Conn(ctx).ExecContext(ctx, `
UPDATE incidents SET state = $1, updated_at = $2 WHERE id = $3`, string(state), at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetAmounts implements incident.Repository.
func (r *Repository) SetAmounts(ctx context.Context, incidentID string, amounts map[string]decimal.Decimal) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		for assignmentID, amount := range amounts {
			if _, err := r.db.Conn(ctx).ExecContext(ctx, `
UPDATE incident_code_assignments SET amount = $1 WHERE id = $2 AND incident_id = $3`,
				amount, assignmentID, incidentID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete implements incident.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.Conn(ctx).ExecContext(ctx,
			`DELETE FROM incident_code_assignments WHERE incident_id = $1`, id); err != nil {
			return err
		}
		_, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
		return err
	})
}

// List implements incident.Repository.
func (r *Repository) List(ctx context.Context, filter incident.Filter) ([]incident.Incident, error) {
	return r.list(ctx, filter, "")
}

// ListForUpdate implements incident.Repository.
func (r *Repository) ListForUpdate(ctx context.Context, filter incident.Filter) ([]incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	return r.list(ctx, filter, r.db.ForUpdate())
}

func (r *Repository) list(ctx context.Context, filter incident.Filter, suffix string) ([]incident.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.State != "" {
		add("state = ?", string(filter.State))
	}
	if filter.GuardID != "" {
		add("guard_id = ?", filter.GuardID)
	}
	if filter.From != nil {
		add("incident_date >= ?", civil.Date(*filter.From, nil))
	}
	if filter.To != nil {
		add("incident_date <= ?", civil.Date(*filter.To, nil))
	}
	query := `
SELECT ` + incidentColumns + `
FROM incidents`
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\nORDER BY incident_date ASC, start_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}
	query += suffix

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var result []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, *inc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range result {
		result[i].Assignments, err = r.assignments(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AppendHistory implements incident.Repository.
func (r *Repository) AppendHistory(ctx context.Context, entry incident.HistoryEntry) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	var from any
	if entry.FromState != nil {
		from = string(*entry.FromState)
	}
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO incident_state_history (id, incident_id, seq, from_state, to_state, actor_id, notes, created_at)
VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM incident_state_history WHERE incident_id = $2),
	$3, $4, $5, $6, $7)`,
		entry.ID, entry.IncidentID, from, string(entry.ToState), entry.ActorID, entry.Notes, entry.CreatedAt.UTC())
	return err
}

// History implements incident.Repository.
func (r *Repository) History(ctx context.Context, incidentID string) ([]incident.HistoryEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id, incident_id, from_state, to_state, actor_id, notes, created_at
FROM incident_state_history
WHERE incident_id = $1
ORDER BY seq ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []incident.HistoryEntry
	for rows.Next() {
		var (
			entry incident.HistoryEntry
			from  sql.NullString
			to    string
		)
		if err := rows.Scan(&entry.ID, &entry.IncidentID, &from, &to, &entry.ActorID, &entry.Notes, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if from.Valid {
			state := incident.State(from.String)
			entry.FromState = &state
		}
		entry.ToState = incident.State(to)
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *Repository) insertAssignments(ctx context.Context, incidentID string, assignments []incident.CodeAssignment) error {
	for i, a := range assignments {
		var amount any
		if a.Amount != nil {
			amount = *a.Amount
		}
		if _, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO incident_code_assignments (id, incident_id, position, billing_code_id, code, minutes, amount, explicit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, incidentID, i, a.BillingCodeID, a.Code, a.Minutes, amount, a.Explicit); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) assignments(ctx context.Context, incidentID string) ([]incident.CodeAssignment, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id, incident_id, billing_code_id, code, minutes, amount, explicit
FROM incident_code_assignments
WHERE incident_id = $1
ORDER BY position ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []incident.CodeAssignment
	for rows.Next() {
		var (
			a      incident.CodeAssignment
			amount decimal.NullDecimal
		)
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.BillingCodeID, &a.Code, &a.Minutes, &amount, &a.Explicit); err != nil {
			return nil, err
		}
		if amount.Valid {
			value := amount.Decimal
			a.Amount = &value
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*incident.Incident, error) {
	var (
		inc          incident.Incident
		observations sql.NullString
		state        string
	)
	if err := row.Scan(&inc.ID, &inc.GuardID, &inc.Date, &inc.Start, &inc.End, &inc.Description,
		&observations, &inc.Modality, &state, &inc.CreatedBy, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, err
	}
	if observations.Valid {
		value := observations.String
		inc.Observations = &value
	}
	inc.State = incident.State(state)
	inc.Date = civil.Date(inc.Date, nil)
	inc.Start = inc.Start.UTC()
	inc.End = inc.End.UTC()
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return &inc, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return incident.ErrNotFound
	}
	return nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
