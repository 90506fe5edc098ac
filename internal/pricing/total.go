package pricing

import (
	"math"
	"sort"

	"cleaning_booking/internal/domain"
)

// ComputeTotal aggregates base price and extras. Every line is rounded to whole cents
// before summing, so the stored DECIMAL columns add up exactly. Extras are summed in
// id order so equal inputs always give bit-identical totals. Ids missing from the
// catalog are skipped.
func (c *Config) ComputeTotal(freq domain.FrequencyTier, hours float64, selected map[string]domain.ExtraSelection) domain.Quote {
	if !freq.Valid() {
		freq = domain.FrequencyOneTime
	}
	hours = Defaults.HoursOr(hours)
	rate := c.HourlyRate(freq)

	ids := make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := domain.Quote{
		Frequency:  freq,
		HourlyRate: rate,
		Hours:      hours,
		Base:       RoundCents(rate * hours),
		Extras:     make([]domain.ExtraLine, 0, len(ids)),
	}
	for _, id := range ids {
		opt, ok := c.Extra(id)
		if !ok {
			continue
		}
		sel := NormalizeSelection(opt.Cost, selected[id])
		amount := RoundCents(RuleCost(opt.Cost, sel, rate))
		q.Extras = append(q.Extras, domain.ExtraLine{ID: id, Selection: sel, Amount: amount})
		q.ExtrasTotal += amount
	}
	q.ExtrasTotal = RoundCents(q.ExtrasTotal)
	q.Total = RoundCents(q.Base + q.ExtrasTotal)
	return q
}

// RoundCents rounds a money amount half away from zero to two decimals.
func RoundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
