package pricing

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"cleaning_booking/internal/domain"
)

type RateTable map[domain.FrequencyTier]float64

// Config is the business configuration: hourly rate per frequency and the extras catalog.
type Config struct {
	Rates  RateTable                   `json:"rates" yaml:"rates"`
	Extras []domain.ExtraServiceOption `json:"extras" yaml:"extras"`

	index map[string]int
}

// DefaultConfig returns the built-in figures. Observed figures differ between
// booking flows, so deployments are expected to supply their own PRICING_FILE.
func DefaultConfig() *Config {
	c := &Config{
		Rates: RateTable{
			domain.FrequencyOneTime:  35,
			domain.FrequencyMonthly:  32,
			domain.FrequencyBiWeekly: 30,
			domain.FrequencyWeekly:   27,
		},
		Extras: []domain.ExtraServiceOption{
			{ID: "oven", Label: "Inside the oven", Cost: domain.CostRule{Kind: domain.CostTimeProportional, Minutes: 60}},
			{ID: "fridge", Label: "Inside the fridge", Cost: domain.CostRule{Kind: domain.CostTimeProportional, Minutes: 30}},
			{ID: "cabinets", Label: "Inside kitchen cabinets", Cost: domain.CostRule{Kind: domain.CostFlat, Amount: 20}},
			{ID: "balcony", Label: "Balcony", Cost: domain.CostRule{Kind: domain.CostFlat, Amount: 15}},
			{ID: "laundry", Label: "Laundry wash and dry", Cost: domain.CostRule{Kind: domain.CostFlat, Amount: 10}},
			{ID: "windows", Label: "Interior windows", Description: "Price per window",
				Cost: domain.CostRule{Kind: domain.CostPerUnit, UnitAmount: 3, DefaultUnits: 1, MinUnits: 1}},
			{ID: "ironing", Label: "Ironing", Description: "Adjustable in 30 minute steps",
				Cost: domain.CostRule{Kind: domain.CostTimeProportional, Minutes: 60, MinMinutes: 30, MaxMinutes: 240, StepMinutes: 30}},
		},
	}
	c.reindex()
	return c
}

// LoadConfig overlays the YAML file at path on DefaultConfig. An empty path yields the defaults.
// Rates present in the file replace the default rate of that tier; a non-empty extras list
// replaces the whole catalog.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("unmarshal pricing file: %w", err)
	}
	for tier, rate := range file.Rates {
		c.Rates[tier] = rate
	}
	if len(file.Extras) > 0 {
		c.Extras = file.Extras
	}
	c.reindex()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) reindex() {
	c.index = make(map[string]int, len(c.Extras))
	for i, e := range c.Extras {
		c.index[e.ID] = i
	}
}

func (c *Config) Validate() error {
	var errs []error
	for _, tier := range domain.FrequencyTiers {
		rate, ok := c.Rates[tier]
		if !ok || !(rate > 0) || math.IsInf(rate, 0) {
			errs = append(errs, fmt.Errorf("rate for %q must be positive", tier))
		}
	}
	for tier := range c.Rates {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("unknown frequency %q", tier))
		}
	}
	seen := map[string]bool{}
	for _, e := range c.Extras {
		if e.ID == "" {
			errs = append(errs, errors.New("extra without id"))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("duplicate extra %q", e.ID))
		}
		seen[e.ID] = true
		if err := validateRule(e.Cost); err != nil {
			errs = append(errs, fmt.Errorf("extra %q: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

func validateRule(r domain.CostRule) error {
	switch r.Kind {
	case domain.CostFlat:
		if !finiteNonNegative(r.Amount) {
			return errors.New("flat amount must be a finite non-negative number")
		}
	case domain.CostPerUnit:
		if !finiteNonNegative(r.UnitAmount) {
			return errors.New("unit amount must be a finite non-negative number")
		}
		if r.DefaultUnits < 0 || r.MinUnits < 0 {
			return errors.New("unit bounds are negative")
		}
	case domain.CostTimeProportional:
		if r.Minutes <= 0 {
			return errors.New("minutes must be positive")
		}
		if r.StepMinutes > 0 {
			if r.MinMinutes <= 0 || r.MaxMinutes < r.MinMinutes {
				return errors.New("adjustable minutes need 0 < min <= max")
			}
			if r.Minutes < r.MinMinutes || r.Minutes > r.MaxMinutes {
				return errors.New("default minutes outside min..max")
			}
		}
	default:
		return fmt.Errorf("unknown cost kind %q", r.Kind)
	}
	return nil
}

// finiteNonNegative is false for NaN and both infinities as well as negatives.
func finiteNonNegative(x float64) bool {
	return x >= 0 && !math.IsInf(x, 0)
}

// HourlyRate looks up the rate of a tier; unknown tiers are charged the one-time rate.
func (c *Config) HourlyRate(f domain.FrequencyTier) float64 {
	if r, ok := c.Rates[f]; ok {
		return r
	}
	return c.Rates[domain.FrequencyOneTime]
}

func (c *Config) Extra(id string) (domain.ExtraServiceOption, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.ExtraServiceOption{}, false
	}
	return c.Extras[i], true
}
