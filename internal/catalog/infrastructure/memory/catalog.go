package memory

import (
	"context"
	"time"

	catalog "guardduty-billing/internal/catalog/domain"
)

// Snapshot is an immutable in-memory catalog. It is safe for concurrent
// readers without locking.
type Snapshot struct {
	codes []catalog.BillingCode
	rates []catalog.RateTable
}

// NewSnapshot copies codes and rates into a snapshot.
func NewSnapshot(codes []catalog.BillingCode, rates []catalog.RateTable) *Snapshot {
	return &Snapshot{
		codes: append([]catalog.BillingCode(nil), codes...),
		rates: append([]catalog.RateTable(nil), rates...),
	}
}

// ListCodes implements catalog.CodeSource.
func (s *Snapshot) ListCodes(_ context.Context, modality catalog.Modality, date time.Time) ([]catalog.BillingCode, error) {
	var result []catalog.BillingCode
	for _, code := range s.codes {
		if code.Status == catalog.StatusActive && code.Modality == modality && code.Validity.Covers(date) {
			result = append(result, code)
		}
	}
	return result, nil
}

// GetCode implements catalog.CodeSource.
func (s *Snapshot) GetCode(_ context.Context, id string) (*catalog.BillingCode, error) {
	for _, code := range s.codes {
		if code.ID == id {
			found := code
			return &found, nil
		}
	}
	return nil, nil
}

// FindActiveCode implements catalog.CodeSource.
func (s *Snapshot) FindActiveCode(_ context.Context, code string, modality catalog.Modality) (*catalog.BillingCode, error) {
	for _, candidate := range s.codes {
		if candidate.Code == code && candidate.Modality == modality && candidate.Status == catalog.StatusActive {
			found := candidate
			return &found, nil
		}
	}
	return nil, nil
}

// GetRate implements catalog.RateSource.
func (s *Snapshot) GetRate(_ context.Context, id string) (*catalog.RateTable, error) {
	for _, rate := range s.rates {
		if rate.ID == id {
			found := rate
			return &found, nil
		}
	}
	return nil, nil
}

// RateFor implements catalog.RateSource.
func (s *Snapshot) RateFor(_ context.Context, date time.Time) (*catalog.RateTable, error) {
	rate, ok := catalog.PickRate(s.rates, date)
	if !ok {
		return nil, nil
	}
	return &rate, nil
}
