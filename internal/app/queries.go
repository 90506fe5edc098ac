package app

import (
	"fmt"
	"sort"

	"cleaning_booking/internal/domain"
	"cleaning_booking/internal/pricing"
)

// QuoteService exposes the pure calculations to callers without a draft.
type QuoteService struct {
	cfg *pricing.Config
}

func NewQuoteService(cfg *pricing.Config) *QuoteService {
	return &QuoteService{cfg: cfg}
}

type RateView struct {
	Frequency  domain.FrequencyTier `json:"frequency"`
	HourlyRate float64              `json:"hourlyRate"`
}

type PricingView struct {
	Rates  []RateView                  `json:"rates"`
	Extras []domain.ExtraServiceOption `json:"extras"`
}

func (s *QuoteService) Pricing() PricingView {
	rates := make([]RateView, 0, len(s.cfg.Rates))
	for _, f := range domain.FrequencyTiers {
		rates = append(rates, RateView{Frequency: f, HourlyRate: s.cfg.HourlyRate(f)})
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].HourlyRate > rates[j].HourlyRate })
	return PricingView{Rates: rates, Extras: append([]domain.ExtraServiceOption(nil), s.cfg.Extras...)}
}

func (s *QuoteService) Estimate(p domain.PropertyProfile) domain.DurationEstimate {
	return pricing.Estimate(p)
}

// Quote rejects unknown extras so callers learn about typos; the aggregator itself would skip them.
func (s *QuoteService) Quote(freq domain.FrequencyTier, hours float64, extras map[string]domain.ExtraSelection) (domain.Quote, error) {
	verr := &domain.ValidationError{}
	if freq != "" && !freq.Valid() {
		verr.Add("frequency", "must be one of: one-time weekly bi-weekly monthly")
	}
	for id := range extras {
		if _, ok := s.cfg.Extra(id); !ok {
			verr.Add("extras."+id, fmt.Sprintf("%s: %s", domain.ErrUnknownExtra, id))
		}
	}
	if err := verr.OrNil(); err != nil {
		return domain.Quote{}, err
	}
	if freq == "" {
		freq = domain.FrequencyOneTime
	}
	return s.cfg.ComputeTotal(freq, hours, extras), nil
}
