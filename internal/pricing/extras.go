package pricing

import (
	"fmt"

	"cleaning_booking/internal/domain"
)

// CostContext is what a cost rule may depend on besides the rule itself.
type CostContext struct {
	Frequency domain.FrequencyTier
	Selection domain.ExtraSelection
}

// NormalizeSelection fills catalog defaults and clamps user-adjustable quantities.
// Fields that do not apply to the rule are zeroed.
func NormalizeSelection(r domain.CostRule, sel domain.ExtraSelection) domain.ExtraSelection {
	switch r.Kind {
	case domain.CostPerUnit:
		minUnits := max(r.MinUnits, 1)
		units := sel.Units
		if units == 0 {
			units = r.DefaultUnits
		}
		return domain.ExtraSelection{Units: max(units, minUnits)}
	case domain.CostTimeProportional:
		if r.StepMinutes <= 0 {
			return domain.ExtraSelection{Minutes: r.Minutes}
		}
		m := sel.Minutes
		if m == 0 {
			m = r.Minutes
		}
		m = clampInt(m, r.MinMinutes, r.MaxMinutes)
		// snap to the step grid anchored at MinMinutes
		steps := (m - r.MinMinutes + r.StepMinutes/2) / r.StepMinutes
		m = clampInt(r.MinMinutes+steps*r.StepMinutes, r.MinMinutes, r.MaxMinutes)
		return domain.ExtraSelection{Minutes: m}
	}
	return domain.ExtraSelection{}
}

// RuleCost prices a normalized selection.
func RuleCost(r domain.CostRule, sel domain.ExtraSelection, hourlyRate float64) float64 {
	switch r.Kind {
	case domain.CostFlat:
		return r.Amount
	case domain.CostPerUnit:
		return r.UnitAmount * float64(sel.Units)
	case domain.CostTimeProportional:
		return float64(sel.Minutes) / 60 * hourlyRate
	}
	return 0
}

// CostOf prices one catalog extra for the given frequency and selection.
func (c *Config) CostOf(extraID string, ctx CostContext) (float64, error) {
	opt, ok := c.Extra(extraID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownExtra, extraID)
	}
	sel := NormalizeSelection(opt.Cost, ctx.Selection)
	return RoundCents(RuleCost(opt.Cost, sel, c.HourlyRate(ctx.Frequency))), nil
}
