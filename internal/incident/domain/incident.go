package incident

import (
	"time"

	"github.com/shopspring/decimal"
)

// CodeAssignment attaches a billing code to an incident.
type CodeAssignment struct {
	ID            string           `json:"id"`
	IncidentID    string           `json:"incident_id"`
	BillingCodeID string           `json:"billing_code_id"`
	Code          string           `json:"code"`
	Minutes       int              `json:"minutes"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	// Explicit marks codes chosen by the reporter rather than matched.
	Explicit bool `json:"explicit"`
}

// Incident is a reported on-call event tied to a guard.
type Incident struct {
	ID           string           `json:"id"`
	GuardID      string           `json:"guard_id"`
	Date         time.Time        `json:"date"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Description  string           `json:"description"`
	Observations *string          `json:"observations,omitempty"`
	Modality     string           `json:"modality"`
	State        State            `json:"state"`
	CreatedBy    string           `json:"created_by"`
	Assignments  []CodeAssignment `json:"assignments"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Minutes returns the whole minutes of the incident interval.
func (i Incident) Minutes() int {
	if !i.End.After(i.Start) {
		return 0
	}
	return int(i.End.Sub(i.Start) / time.Minute)
}

// ExplicitCodes returns the codes of explicit assignments in order.
func (i Incident) ExplicitCodes() []string {
	var codes []string
	for _, a := range i.Assignments {
		if a.Explicit {
			codes = append(codes, a.Code)
		}
	}
	return codes
}

// Priced reports whether every assignment carries an amount.
func (i Incident) Priced() bool {
	for _, a := range i.Assignments {
		if a.Amount == nil {
			return false
		}
	}
	return true
}

// TotalMinutes sums assignment minutes.
func (i Incident) TotalMinutes() int {
	total := 0
	for _, a := range i.Assignments {
		total += a.Minutes
	}
	return total
}

// TotalAmount sums assignment amounts. Unpriced assignments count as zero.
func (i Incident) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, a := range i.Assignments {
		if a.Amount != nil {
			total = total.Add(*a.Amount)
		}
	}
	return total
}

// HistoryEntry records one state change. Entries are append-only.
type HistoryEntry struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	FromState  *State    `json:"from_state"`
	ToState    State     `json:"to_state"`
	ActorID    string    `json:"actor_id"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows incident listings. Dates are guard dates, inclusive.
type Filter struct {
	From    *time.Time
	To      *time.Time
	State   State
	GuardID string
	Limit   int
}
