package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayType classifies the calendar date that owns a guard.
type DayType string

const (
	DayWeekday           DayType = "weekday"
	DaySaturdayMorning   DayType = "saturday-morning"
	DaySaturdayAfternoon DayType = "saturday-afternoon"
	DaySunday            DayType = "sunday"
	DayHoliday           DayType = "holiday"
)

// Saturday shifts starting in [07:00, 13:00) are morning shifts.
const (
	saturdayMorningFrom = 7
	saturdayMorningTo   = 13
)

// ClassifyDay derives the day type of a guard date. startHour is the guard's
// nominal start hour and only matters on Saturdays.
func ClassifyDay(date time.Time, startHour int, holiday bool) DayType {
	switch {
	case holiday:
		return DayHoliday
	case date.Weekday() == time.Sunday:
		return DaySunday
	case date.Weekday() == time.Saturday:
		if startHour >= saturdayMorningFrom && startHour < saturdayMorningTo {
			return DaySaturdayMorning
		}
		return DaySaturdayAfternoon
	default:
		return DayWeekday
	}
}

// NonWorking reports whether the day uses the non-working surcharge tier.
func (d DayType) NonWorking() bool {
	switch d {
	case DayHoliday, DaySunday, DaySaturdayAfternoon:
		return true
	default:
		return false
	}
}

// Valid reports whether d is a known day type.
func (d DayType) Valid() bool {
	switch d {
	case DayWeekday, DaySaturdayMorning, DaySaturdayAfternoon, DaySunday, DayHoliday:
		return true
	default:
		return false
	}
}

// Passive guard factors encode the reference shift length of each day type
// relative to an 8h weekday shift.
var passiveDayFactors = map[DayType]decimal.Decimal{
	DayWeekday:           decimal.NewFromInt(1),
	DaySaturdayMorning:   decimal.RequireFromString("0.75"),
	DaySaturdayAfternoon: decimal.RequireFromString("1.375"),
	DaySunday:            decimal.RequireFromString("2.125"),
	DayHoliday:           decimal.RequireFromString("2.125"),
}

// PassiveFactor returns the passive guard multiplier for the day type.
func (d DayType) PassiveFactor() decimal.Decimal {
	if factor, ok := passiveDayFactors[d]; ok {
		return factor
	}
	return decimal.NewFromInt(1)
}
