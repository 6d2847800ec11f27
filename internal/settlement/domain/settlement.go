package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"guardduty-billing/internal/platform/civil"
)

// Status is the payroll state of a settlement.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusPaid, StatusCancelled},
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
}

// CanMoveTo reports whether s -> to is allowed.
func (s Status) CanMoveTo(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Period is a calendar month in YYYY-MM form.
type Period string

// ParsePeriod validates and normalizes a period.
func ParsePeriod(value string) (Period, error) {
	month, err := civil.ParseMonth(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
	}
	return Period(month.Format(civil.MonthLayout)), nil
}

// Bounds returns the first and last calendar dates of the period.
func (p Period) Bounds() (first, last time.Time) {
	month, err := civil.ParseMonth(string(p))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return month, month.AddDate(0, 1, -1)
}

// Settlement is the payroll batch of one period.
type Settlement struct {
	ID           string          `json:"id"`
	Period       Period          `json:"period"`
	Status       Status          `json:"status"`
	GeneratedAt  time.Time       `json:"generated_at"`
	GeneratedBy  string          `json:"generated_by"`
	TotalMinutes int             `json:"total_minutes"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Details      []Detail        `json:"details,omitempty"`
}

// Detail aggregates one user's incidents in a settlement.
type Detail struct {
	ID              string          `json:"id"`
	SettlementID    string          `json:"settlement_id"`
	IncidentID      string          `json:"incident_id"`
	GuardID         string          `json:"guard_id"`
	UserID          string          `json:"user_id"`
	AggregationDate time.Time       `json:"aggregation_date"`
	IncidentCount   int             `json:"incident_count"`
	TotalMinutes    int             `json:"total_minutes"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}
