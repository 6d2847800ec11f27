// Package seed loads reference data (billing codes, rate tables and guards)
// from a YAML document.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	billing "guardduty-billing/internal/billing/domain"
	catalog "guardduty-billing/internal/catalog/domain"
	guard "guardduty-billing/internal/guard/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
)

type codeDocument struct {
	ID          string `yaml:"id"`
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	Weekdays    string `yaml:"weekdays"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Factor      string `yaml:"factor"`
	ValidFrom   string `yaml:"valid_from"`
	ValidUntil  string `yaml:"valid_until"`
	Modality    string `yaml:"modality"`
	Status      string `yaml:"status"`
}

type rateDocument struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	PassiveGuard        string `yaml:"passive_guard_value"`
	ActiveHour          string `yaml:"active_hour_value"`
	NocturnalWeekday    string `yaml:"nocturnal_surcharge_weekday"`
	NocturnalNonWorking string `yaml:"nocturnal_surcharge_non_working"`
	ValidFrom           string `yaml:"valid_from"`
	ValidUntil          string `yaml:"valid_until"`
	Status              string `yaml:"status"`
}

type guardDocument struct {
	ID        string `yaml:"id"`
	Date      string `yaml:"date"`
	UserID    string `yaml:"user_id"`
	Kind      string `yaml:"kind"`
	StartTime string `yaml:"start_time"`
}

type document struct {
	Codes  []codeDocument  `yaml:"codes"`
	Rates  []rateDocument  `yaml:"rates"`
	Guards []guardDocument `yaml:"guards"`
}

// Data is decoded reference data.
type Data struct {
	Codes  []catalog.BillingCode
	Rates  []catalog.RateTable
	Guards []guard.Guard
}

// LoadFile reads a seed document from path.
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes and validates a seed document.
func Parse(raw []byte) (*Data, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	data := &Data{}
	for i, entry := range doc.Codes {
		code, err := entry.decode()
		if err != nil {
			return nil, fmt.Errorf("seed: code %d: %w", i, err)
		}
		data.Codes = append(data.Codes, code)
	}
	for i, entry := range doc.Rates {
		rate, err := entry.decode()
		if err != nil {
			return nil, fmt.Errorf("seed: rate %d: %w", i, err)
		}
		data.Rates = append(data.Rates, rate)
	}
	for i, entry := range doc.Guards {
		g, err := entry.decode()
		if err != nil {
			return nil, fmt.Errorf("seed: guard %d: %w", i, err)
		}
		data.Guards = append(data.Guards, g)
	}
	return data, nil
}

func (d codeDocument) decode() (catalog.BillingCode, error) {
	code := catalog.BillingCode{
		ID:          strings.TrimSpace(d.ID),
		Code:        strings.TrimSpace(d.Code),
		Description: d.Description,
		Kind:        catalog.Kind(strings.ToLower(strings.TrimSpace(d.Kind))),
		Modality:    catalog.Modality(strings.ToUpper(strings.TrimSpace(d.Modality))),
		Status:      statusOrActive(d.Status),
	}
	if code.ID == "" {
		return code, errors.New("id required")
	}
	if code.Modality == "" {
		code.Modality = catalog.DefaultModality
	}
	var err error
	if code.Weekdays, err = catalog.ParseWeekdaySet(d.Weekdays); err != nil {
		return code, err
	}
	if code.Window.Start, err = timeOfDayOr(d.Start, 0); err != nil {
		return code, err
	}
	if code.Window.End, err = timeOfDayOr(d.End, 0); err != nil {
		return code, err
	}
	code.Factor = decimal.NewFromInt(1)
	if strings.TrimSpace(d.Factor) != "" {
		if code.Factor, err = decimal.NewFromString(strings.TrimSpace(d.Factor)); err != nil {
			return code, fmt.Errorf("invalid factor %q", d.Factor)
		}
	}
	if code.Validity, err = validity(d.ValidFrom, d.ValidUntil); err != nil {
		return code, err
	}
	return code, code.Validate()
}

func (d rateDocument) decode() (catalog.RateTable, error) {
	rate := catalog.RateTable{
		ID:     strings.TrimSpace(d.ID),
		Name:   d.Name,
		Status: statusOrActive(d.Status),
	}
	if rate.ID == "" {
		return rate, errors.New("id required")
	}
	values := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{d.PassiveGuard, &rate.PassiveGuardValue},
		{d.ActiveHour, &rate.ActiveHourValue},
		{d.NocturnalWeekday, &rate.NocturnalSurchargeWeekday},
		{d.NocturnalNonWorking, &rate.NocturnalSurchargeNonWorking},
	}
	for _, v := range values {
		if strings.TrimSpace(v.raw) == "" {
			continue
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(v.raw))
		if err != nil {
			return rate, fmt.Errorf("invalid amount %q", v.raw)
		}
		if parsed.IsNegative() {
			return rate, fmt.Errorf("negative amount %q", v.raw)
		}
		*v.dst = parsed
	}
	var err error
	rate.Validity, err = validity(d.ValidFrom, d.ValidUntil)
	return rate, err
}

func (d guardDocument) decode() (guard.Guard, error) {
	g := guard.Guard{ID: strings.TrimSpace(d.ID), UserID: strings.TrimSpace(d.UserID)}
	if g.ID == "" || g.UserID == "" {
		return g, errors.New("id and user_id required")
	}
	var err error
	if g.Date, err = civil.ParseDate(d.Date); err != nil {
		return g, fmt.Errorf("invalid date %q", d.Date)
	}
	if g.Kind, err = billing.ParseGuardKind(d.Kind); err != nil {
		return g, err
	}
	if strings.TrimSpace(d.StartTime) != "" {
		start, err := civil.ParseTimeOfDay(d.StartTime)
		if err != nil {
			return g, err
		}
		g.StartTime = &start
	}
	return g, nil
}

func statusOrActive(value string) string {
	if value = strings.ToLower(strings.TrimSpace(value)); value == "" {
		return catalog.StatusActive
	}
	return value
}

func timeOfDayOr(value string, fallback civil.TimeOfDay) (civil.TimeOfDay, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return civil.ParseTimeOfDay(value)
}

func validity(from, until string) (catalog.Validity, error) {
	var v catalog.Validity
	start, err := civil.ParseDate(from)
	if err != nil {
		return v, fmt.Errorf("invalid valid_from %q", from)
	}
	v.From = start
	if strings.TrimSpace(until) != "" {
		end, err := civil.ParseDate(until)
		if err != nil {
			return v, fmt.Errorf("invalid valid_until %q", until)
		}
		if end.Before(start) {
			return v, errors.New("valid_until before valid_from")
		}
		v.Until = &end
	}
	return v, nil
}

// CodeWriter stores billing codes.
type CodeWriter interface {
	Upsert(ctx context.Context, code catalog.BillingCode) error
}

// RateWriter stores rate tables.
type RateWriter interface {
	Upsert(ctx context.Context, rate catalog.RateTable) error
}

// GuardWriter stores guards.
type GuardWriter interface {
	Upsert(ctx context.Context, g guard.Guard) error
}

// Apply writes data through the writers in one transaction.
func Apply(ctx context.Context, tx database.Transactor, data *Data, codes CodeWriter, rates RateWriter, guards GuardWriter) error {
	if data == nil {
		return nil
	}
	return tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, code := range data.Codes {
			if err := codes.Upsert(ctx, code); err != nil {
				return fmt.Errorf("seed code %s: %w", code.ID, err)
			}
		}
		for _, rate := range data.Rates {
			if err := rates.Upsert(ctx, rate); err != nil {
				return fmt.Errorf("seed rate %s: %w", rate.ID, err)
			}
		}
		for _, g := range data.Guards {
			if err := guards.Upsert(ctx, g); err != nil {
				return fmt.Errorf("seed guard %s: %w", g.ID, err)
			}
		}
		return nil
	})
}
