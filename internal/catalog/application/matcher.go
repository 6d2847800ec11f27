package application

import (
	"context"
	"errors"
	"time"

	catalog "guardduty-billing/internal/catalog/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

// Matcher selects the billing codes that apply to a time-of-day interval.
type Matcher struct {
	codes catalog.CodeSource
}

// NewMatcher constructs a matcher over a read-only code source.
func NewMatcher(codes catalog.CodeSource) (*Matcher, error) {
	if codes == nil {
		return nil, errors.New("matcher: nil code source")
	}
	return &Matcher{codes: codes}, nil
}

// FindApplicable returns the active codes of modality that cover date and
// overlap [start, end), ordered by code. end before start wraps past
// midnight. No match yields an empty slice.
func (m *Matcher) FindApplicable(ctx context.Context, date time.Time, start, end civil.TimeOfDay, modality catalog.Modality) ([]catalog.BillingCode, error) {
	if date.IsZero() {
		return nil, fault.Validation("matcher: date required")
	}
	if !start.Valid() || !end.Valid() {
		return nil, fault.Validation("matcher: invalid time of day")
	}
	modality, err := catalog.ParseModality(string(modality))
	if err != nil {
		return nil, err
	}
	date = civil.Date(date, nil)

	candidates, err := m.codes.ListCodes(ctx, modality, date)
	if err != nil {
		return nil, fault.Storage("list billing codes", err)
	}
	query := catalog.Window{Start: start, End: end}
	matched := make([]catalog.BillingCode, 0, len(candidates))
	for _, code := range candidates {
		if code.Applies(date, query, modality) {
			matched = append(matched, code)
		}
	}
	catalog.SortByCode(matched)
	return matched, nil
}
