package domain

type FrequencyTier string

const (
	FrequencyOneTime  FrequencyTier = "one-time"
	FrequencyWeekly   FrequencyTier = "weekly"
	FrequencyBiWeekly FrequencyTier = "bi-weekly"
	FrequencyMonthly  FrequencyTier = "monthly"
)

var FrequencyTiers = []FrequencyTier{FrequencyOneTime, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly}

func (f FrequencyTier) Valid() bool {
	for _, t := range FrequencyTiers {
		if f == t {
			return true
		}
	}
	return false
}

type CostKind string

const (
	CostFlat             CostKind = "flat"
	CostPerUnit          CostKind = "per_unit"
	CostTimeProportional CostKind = "time_proportional"
)

// CostRule prices one extra. Only the fields of its Kind are meaningful:
//
//	flat:              Amount
//	per_unit:          UnitAmount * units, units >= MinUnits (at least 1)
//	time_proportional: minutes/60 * hourly rate of the booking's frequency;
//	                   adjustable between MinMinutes and MaxMinutes when StepMinutes > 0
type CostRule struct {
	Kind         CostKind `json:"kind" yaml:"kind"`
	Amount       float64  `json:"amount,omitempty" yaml:"amount"`
	UnitAmount   float64  `json:"unitAmount,omitempty" yaml:"unitAmount"`
	DefaultUnits int      `json:"defaultUnits,omitempty" yaml:"defaultUnits"`
	MinUnits     int      `json:"minUnits,omitempty" yaml:"minUnits"`
	Minutes      int      `json:"minutes,omitempty" yaml:"minutes"`
	MinMinutes   int      `json:"minMinutes,omitempty" yaml:"minMinutes"`
	MaxMinutes   int      `json:"maxMinutes,omitempty" yaml:"maxMinutes"`
	StepMinutes  int      `json:"stepMinutes,omitempty" yaml:"stepMinutes"`
}

func (r CostRule) Adjustable() bool {
	switch r.Kind {
	case CostPerUnit:
		return true
	case CostTimeProportional:
		return r.StepMinutes > 0
	}
	return false
}

type ExtraServiceOption struct {
	ID          string   `json:"id" yaml:"id"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Cost        CostRule `json:"cost" yaml:"cost"`
}

// ExtraSelection carries the user-adjustable quantity of a selected extra.
// Zero values mean "use the catalog default".
type ExtraSelection struct {
	Units   int `json:"units,omitempty"`
	Minutes int `json:"minutes,omitempty"`
}

type ExtraLine struct {
	ID        string         `json:"id"`
	Selection ExtraSelection `json:"selection"`
	Amount    float64        `json:"amount"`
}

// Quote is the output of the price aggregator. Total == Base + ExtrasTotal.
type Quote struct {
	Frequency   FrequencyTier `json:"frequency"`
	HourlyRate  float64       `json:"hourlyRate"`
	Hours       float64       `json:"hours"`
	Base        float64       `json:"base"`
	Extras      []ExtraLine   `json:"extras"`
	ExtrasTotal float64       `json:"extrasTotal"`
	Total       float64       `json:"total"`
}
