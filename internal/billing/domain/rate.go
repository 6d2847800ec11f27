package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	catalog "guardduty-billing/internal/catalog/domain"
)

// GuardKind selects which amount components a guard earns.
type GuardKind string

const (
	GuardPassive GuardKind = "passive"
	GuardActive  GuardKind = "active"
	GuardBoth    GuardKind = "both"
)

// ParseGuardKind validates a guard kind. Empty input yields GuardBoth.
func ParseGuardKind(value string) (GuardKind, error) {
	kind := GuardKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case "":
		return GuardBoth, nil
	case GuardPassive, GuardActive, GuardBoth:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGuardKind, value)
	}
}

func (k GuardKind) passive() bool { return k == GuardPassive || k == GuardBoth }
func (k GuardKind) active() bool  { return k == GuardActive || k == GuardBoth }

// Component names used in breakdown lines.
const (
	ComponentPassive   = "passive_guard"
	ComponentActive    = "active_hours"
	ComponentNocturnal = "nocturnal_surcharge"
)

// nonWorkingActiveFactor scales the active hour value on non-working days.
var nonWorkingActiveFactor = decimal.RequireFromString("1.5")

// BreakdownLine explains one amount component.
type BreakdownLine struct {
	Component string          `json:"component"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitValue decimal.Decimal `json:"unit_value"`
	Factor    decimal.Decimal `json:"factor"`
	Amount    decimal.Decimal `json:"amount"`
}

// Amounts is the monetary result of a calculation.
type Amounts struct {
	PassiveAmount   decimal.Decimal `json:"passive_amount"`
	ActiveAmount    decimal.Decimal `json:"active_amount"`
	NocturnalAmount decimal.Decimal `json:"nocturnal_amount"`
	Total           decimal.Decimal `json:"total"`
	Breakdown       []BreakdownLine `json:"breakdown"`
	// Exact is Total before rounding. Callers that scale the total round
	// the scaled value instead of Total.
	Exact decimal.Decimal `json:"-"`
}

// Calculate prices a decomposition against a rate table. It is pure. Values
// are rounded to cents only once every component is known.
func Calculate(rate *catalog.RateTable, d Decomposition, kind GuardKind) (Amounts, error) {
	if rate == nil {
		return Amounts{}, ErrNilRate
	}
	kind, err := ParseGuardKind(string(kind))
	if err != nil {
		return Amounts{}, err
	}
	if d.TotalMinutes < 0 || d.NocturnalMinutes < 0 || d.NocturnalMinutes > d.TotalMinutes {
		return Amounts{}, fmt.Errorf("%w: inconsistent decomposition", ErrInvalidInterval)
	}

	zero := decimal.Zero
	passive, active, nocturnal := zero, zero, zero
	var lines []BreakdownLine

	if kind.passive() {
		factor := d.DayType.PassiveFactor()
		passive = rate.PassiveGuardValue.Mul(factor)
		lines = append(lines, BreakdownLine{
			Component: ComponentPassive,
			Quantity:  decimal.NewFromInt(1),
			UnitValue: rate.PassiveGuardValue,
			Factor:    factor,
			Amount:    passive,
		})
	}

	if kind.active() {
		hours := ceilHours(d.TotalMinutes)
		factor := decimal.NewFromInt(1)
		if d.DayType.NonWorking() {
			factor = nonWorkingActiveFactor
		}
		active = hours.Mul(rate.ActiveHourValue).Mul(factor)
		lines = append(lines, BreakdownLine{
			Component: ComponentActive,
			Quantity:  hours,
			UnitValue: rate.ActiveHourValue,
			Factor:    factor,
			Amount:    active,
		})

		nightHours := ceilHours(d.NocturnalMinutes)
		surcharge := rate.NocturnalSurchargeWeekday
		if d.DayType.NonWorking() {
			surcharge = rate.NocturnalSurchargeNonWorking
		}
		nocturnal = nightHours.Mul(surcharge)
		lines = append(lines, BreakdownLine{
			Component: ComponentNocturnal,
			Quantity:  nightHours,
			UnitValue: surcharge,
			Factor:    decimal.NewFromInt(1),
			Amount:    nocturnal,
		})
	}

	total := passive.Add(active).Add(nocturnal)
	for i := range lines {
		lines[i].Amount = lines[i].Amount.Round(2)
	}
	return Amounts{
		PassiveAmount:   passive.Round(2),
		ActiveAmount:    active.Round(2),
		NocturnalAmount: nocturnal.Round(2),
		Total:           total.Round(2),
		Breakdown:       lines,
		Exact:           total,
	}, nil
}

func ceilHours(minutes int) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64((minutes + 59) / 60))
}
