// Package pricing holds the booking calculations shared by every booking flow:
// duration estimate, upsell decision, extras costs and the price aggregate.
// All functions are pure; callers sanitize inputs with the Defaults table first.
package pricing

import (
	"fmt"
	"math"

	"cleaning_booking/internal/domain"
)

const (
	BaseHours = 2.0
	MinHours  = 2.0
	MaxHours  = 8.0

	quickFactor = 0.8

	UpsellHoursThreshold     = 6.0
	UpsellBathroomsThreshold = 3.0
)

// EstimateDuration returns the recommended hours for a job, a multiple of 0.5 in [MinHours, MaxHours].
func EstimateDuration(sizeSquareMeters, bedrooms int, bathrooms float64, pace domain.CleaningPace) float64 {
	duration := BaseHours
	if sizeSquareMeters > 60 {
		duration += math.Ceil(float64(sizeSquareMeters-60)/20) * 0.5
	}
	if bedrooms > 1 {
		duration += float64(bedrooms-1) * 0.3
	}
	if bathrooms > 1 {
		duration += (bathrooms - 1) * 0.5
	}

	final := math.Min(duration, MaxHours)
	if pace == domain.PaceQuick {
		final = math.Max(final*quickFactor, MinHours)
	}
	return roundHalf(final)
}

// roundHalf rounds to the nearest 0.5, halves going up.
func roundHalf(h float64) float64 {
	return math.Floor(h*2+0.5) / 2
}

// ShouldSuggestUpsell must be given the standard-pace duration, whatever pace the user picked.
func ShouldSuggestUpsell(standardPaceDuration, bathrooms float64) bool {
	return standardPaceDuration >= UpsellHoursThreshold || bathrooms >= UpsellBathroomsThreshold
}

// Estimate sanitizes the profile and returns both the pace-adjusted and the standard estimate.
func Estimate(p domain.PropertyProfile) domain.DurationEstimate {
	p = SanitizeProfile(p)
	standard := EstimateDuration(p.SizeSquareMeters, p.Bedrooms, p.Bathrooms, domain.PaceStandard)
	hours := standard
	if p.CleaningPace != domain.PaceStandard {
		hours = EstimateDuration(p.SizeSquareMeters, p.Bedrooms, p.Bathrooms, p.CleaningPace)
	}
	return domain.DurationEstimate{
		Hours:             hours,
		StandardHours:     standard,
		UpsellRecommended: ShouldSuggestUpsell(standard, p.Bathrooms),
	}
}

// UpsellKey identifies the inputs an upsell decision was made for.
func UpsellKey(p domain.PropertyProfile) string {
	return fmt.Sprintf("%d|%d|%g", p.SizeSquareMeters, p.Bedrooms, p.Bathrooms)
}
