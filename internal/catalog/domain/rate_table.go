package catalog

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable holds the guard and hour values valid over a date range.
type RateTable struct {
	ID                           string          `json:"id"`
	Name                         string          `json:"name"`
	PassiveGuardValue            decimal.Decimal `json:"passive_guard_value"`
	ActiveHourValue              decimal.Decimal `json:"active_hour_value"`
	NocturnalSurchargeWeekday    decimal.Decimal `json:"nocturnal_surcharge_weekday"`
	NocturnalSurchargeNonWorking decimal.Decimal `json:"nocturnal_surcharge_non_working"`
	Validity                     Validity        `json:"validity"`
	Status                       string          `json:"status"`
	CreatedAt                    time.Time       `json:"created_at"`
}

// Covers reports whether the table is active on date.
func (r RateTable) Covers(date time.Time) bool {
	return r.Status == StatusActive && r.Validity.Covers(date)
}

// PickRate returns the active table covering date. When several overlap, the
// most recently created one wins.
func PickRate(tables []RateTable, date time.Time) (RateTable, bool) {
	candidates := make([]RateTable, 0, len(tables))
	for _, table := range tables {
		if table.Covers(date) {
			candidates = append(candidates, table)
		}
	}
	if len(candidates) == 0 {
		return RateTable{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})
	return candidates[0], true
}
