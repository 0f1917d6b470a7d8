package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplicableSurcharges filters all to the surcharges active at `at` in the tenant's zone.
func ApplicableSurcharges(all []Surcharge, at time.Time, loc *time.Location) []Surcharge {
	if loc != nil {
		at = at.In(loc)
	}
	var out []Surcharge
	for _, s := range all {
		if s.AppliesAt(at) {
			out = append(out, s)
		}
	}
	return out
}

// AppliesAt checks date range, time-of-day window and weekday against local wall time.
func (s Surcharge) AppliesAt(local time.Time) bool {
	day := dateKey(local)
	if s.StartDate != nil && day < dateKey(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && day > dateKey(*s.EndDate) {
		return false
	}
	if !s.inWindow(ClockTime(local.Hour()*60 + local.Minute())) {
		return false
	}
	if len(s.Days) > 0 {
		found := false
		for _, d := range s.Days {
			if d == local.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s Surcharge) inWindow(now ClockTime) bool {
	switch {
	case s.StartTime == nil && s.EndTime == nil:
		return true
	case s.EndTime == nil:
		return now >= *s.StartTime
	case s.StartTime == nil:
		return now <= *s.EndTime
	}
	start, end := *s.StartTime, *s.EndTime
	if start <= end {
		return now >= start && now <= end
	}
	// window wraps midnight, e.g. 22:00-05:00
	return now >= start || now <= end
}

// ApplySurcharges sums the surcharges against base. Percentages are each taken from
// base itself and never from one another.
func ApplySurcharges(base decimal.Decimal, list []Surcharge) (decimal.Decimal, []AppliedSurcharge) {
	total := decimal.Zero
	applied := make([]AppliedSurcharge, 0, len(list))
	for _, s := range list {
		var amount decimal.Decimal
		switch s.Type {
		case SurchargePercent:
			amount = base.Mul(s.Value).Div(hundred)
		case SurchargeFlat:
			amount = s.Value
		default:
			continue
		}
		total = total.Add(amount)
		applied = append(applied, AppliedSurcharge{
			ID:     s.ID,
			Name:   s.Name,
			Type:   s.Type,
			Value:  s.Value,
			Amount: amount,
		})
	}
	return total, applied
}

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
