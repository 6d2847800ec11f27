package billing

import (
	"fmt"
	"time"
)

// Decomposition is an interval split into billing components.
type Decomposition struct {
	TotalMinutes     int     `json:"total_minutes"`
	NocturnalMinutes int     `json:"nocturnal_minutes"`
	DayType          DayType `json:"day_type"`
}

// IsNocturnalHour reports whether an hour of day belongs to the nocturnal
// band 21:00-05:59.
func IsNocturnalHour(hour int) bool {
	return hour >= 21 || hour <= 5
}

// SplitInterval walks [start, end) in hour-aligned segments and returns the
// total and nocturnal minutes. Hours are taken in start's location.
func SplitInterval(start, end time.Time) (total, nocturnal int, err error) {
	if !end.After(start) {
		return 0, 0, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidInterval,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	loc := start.Location()
	end = end.In(loc)

	var nocturnalSeconds float64
	cursor := start
	for cursor.Before(end) {
		segmentStart := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), cursor.Hour(), 0, 0, 0, loc)
		segmentEnd := segmentStart.Add(time.Hour)
		if !segmentEnd.After(cursor) {
			// DST fold; move past the repeated wall hour.
			segmentEnd = cursor.Add(time.Hour)
		}
		overlapEnd := segmentEnd
		if end.Before(overlapEnd) {
			overlapEnd = end
		}
		if IsNocturnalHour(segmentStart.Hour()) {
			nocturnalSeconds += overlapEnd.Sub(cursor).Seconds()
		}
		cursor = overlapEnd
	}

	total = int(end.Sub(start) / time.Minute)
	nocturnal = int(nocturnalSeconds / 60)
	if nocturnal > total {
		nocturnal = total
	}
	return total, nocturnal, nil
}
