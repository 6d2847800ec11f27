package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Kind classifies a billing code.
type Kind string

const (
	KindDiurnal   Kind = "diurnal"
	KindNocturnal Kind = "nocturnal"
	KindHoliday   Kind = "holiday"
	KindOther     Kind = "other"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	switch k {
	case KindDiurnal, KindNocturnal, KindHoliday, KindOther:
		return true
	default:
		return false
	}
}

// Modality is the contract scheme a code belongs to.
type Modality string

// DefaultModality is used when callers do not pick one.
const DefaultModality Modality = "FC"

var modalityPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// ParseModality normalizes and validates a modality tag. Empty input yields
// DefaultModality.
func ParseModality(value string) (Modality, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return DefaultModality, nil
	}
	if !modalityPattern.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidModality, value)
	}
	return Modality(value), nil
}

// WeekdaySet is a set of weekdays. The empty set means every day.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var set WeekdaySet
	for _, day := range days {
		set |= 1 << uint(day)
	}
	return set
}

// All reports whether the set covers every weekday.
func (s WeekdaySet) All() bool {
	return s == 0 || s == 0x7f
}

// Contains reports whether day is in the set.
func (s WeekdaySet) Contains(day time.Weekday) bool {
	return s.All() || s&(1<<uint(day)) != 0
}

// String encodes the set as comma separated weekday numbers, "" for all.
func (s WeekdaySet) String() string {
	if s.All() {
		return ""
	}
	parts := make([]string, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		if s&(1<<uint(day)) != 0 {
			parts = append(parts, strconv.Itoa(int(day)))
		}
	}
	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (s WeekdaySet) MarshalText() ([]byte, error) {
	if s.All() {
		return []byte("all"), nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *WeekdaySet) UnmarshalText(data []byte) error {
	parsed, err := ParseWeekdaySet(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseWeekdaySet decodes the String form. "all" and "" mean every day.
func ParseWeekdaySet(value string) (WeekdaySet, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "all") {
		return 0, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return 0, fmt.Errorf("catalog: invalid weekday %q", part)
		}
		days = append(days, time.Weekday(n))
	}
	return NewWeekdaySet(days...), nil
}

// Window is a time-of-day range [Start, End). End before Start wraps past
// midnight and End equal to Start covers the whole day.
type Window struct {
	Start civil.TimeOfDay `json:"start"`
	End   civil.TimeOfDay `json:"end"`
}

type span struct{ from, to int }

// spans splits the window into non-wrapping [from, to) minute ranges.
func (w Window) spans() []span {
	start, end := int(w.Start), int(w.End)
	switch {
	case start == end:
		return []span{{0, 24 * 60}}
	case start < end:
		return []span{{start, end}}
	default:
		return []span{{start, 24 * 60}, {0, end}}
	}
}

// Overlaps reports whether two windows share any minute, honouring wrap.
func (w Window) Overlaps(other Window) bool {
	for _, a := range w.spans() {
		for _, b := range other.spans() {
			if a.from < b.to && b.from < a.to {
				return true
			}
		}
	}
	return false
}

// Validity is an inclusive calendar date range; a nil Until is open ended.
type Validity struct {
	From  time.Time  `json:"from"`
	Until *time.Time `json:"until,omitempty"`
}

// Covers reports whether date falls within the range.
func (v Validity) Covers(date time.Time) bool {
	date = civil.Date(date, nil)
	if date.Before(civil.Date(v.From, nil)) {
		return false
	}
	if v.Until != nil && date.After(civil.Date(*v.Until, nil)) {
		return false
	}
	return true
}

// BillingCode is a catalog rule describing when a rate component applies.
type BillingCode struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Kind        Kind            `json:"kind"`
	Weekdays    WeekdaySet      `json:"weekdays"`
	Window      Window          `json:"window"`
	Factor      decimal.Decimal `json:"factor"`
	Validity    Validity        `json:"validity"`
	Modality    Modality        `json:"modality"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Applies evaluates the selection rule for a date, a time-of-day query window
// and a modality.
func (c BillingCode) Applies(date time.Time, query Window, modality Modality) bool {
	if c.Status != StatusActive {
		return false
	}
	if !c.Validity.Covers(date) {
		return false
	}
	if c.Modality != modality {
		return false
	}
	if !c.Weekdays.Contains(date.Weekday()) {
		return false
	}
	return c.Window.Overlaps(query)
}

// Validate checks the code definition.
func (c BillingCode) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return fault.Validation("catalog: empty billing code")
	}
	if !c.Kind.Valid() {
		return fault.Validation("catalog: invalid billing code kind")
	}
	if !c.Window.Start.Valid() || !c.Window.End.Valid() {
		return fault.Validation("catalog: invalid billing code window")
	}
	if _, err := ParseModality(string(c.Modality)); err != nil {
		return err
	}
	if c.Validity.Until != nil && c.Validity.Until.Before(c.Validity.From) {
		return fault.Validation("catalog: validity ends before it starts")
	}
	return nil
}

// SortByCode orders codes by ascending code string, then id.
func SortByCode(codes []BillingCode) {
	sort.SliceStable(codes, func(i, j int) bool {
		if codes[i].Code != codes[j].Code {
			return codes[i].Code < codes[j].Code
		}
		return codes[i].ID < codes[j].ID
	})
}
