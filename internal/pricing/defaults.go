package pricing

import (
	"math"

	"cleaning_booking/internal/domain"
)

// FieldDefaults is the single place field fallbacks are defined.
type FieldDefaults struct {
	SizeSquareMeters         int
	Bedrooms                 int
	Bathrooms                float64
	DirtinessLevel           int
	LastProfessionalCleaning int
	CleaningPace             domain.CleaningPace
	Hours                    float64
	Frequency                map[domain.ServiceType]domain.FrequencyTier
}

var Defaults = FieldDefaults{
	SizeSquareMeters:         70,
	Bedrooms:                 1,
	Bathrooms:                1,
	DirtinessLevel:           0,
	LastProfessionalCleaning: 0,
	CleaningPace:             domain.PaceStandard,
	Hours:                    2,
	Frequency: map[domain.ServiceType]domain.FrequencyTier{
		domain.ServiceRegular:          domain.FrequencyWeekly,
		domain.ServiceDeep:             domain.FrequencyOneTime,
		domain.ServiceMoveInOut:        domain.FrequencyOneTime,
		domain.ServicePostConstruction: domain.FrequencyOneTime,
	},
}

const (
	MinSizeSquareMeters = 20
	MaxSizeSquareMeters = 500
	MaxDirtinessLevel   = 5
	MaxLastCleaning     = 5
)

// FrequencyFor returns the default frequency of a service flow.
func (d FieldDefaults) FrequencyFor(s domain.ServiceType) domain.FrequencyTier {
	if f, ok := d.Frequency[s]; ok {
		return f
	}
	return domain.FrequencyOneTime
}

// Number reports whether f is usable; NaN, infinities and negatives are not.
func Number(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// SizeOr converts a raw size value, falling back to the default.
func (d FieldDefaults) SizeOr(f float64) int {
	if !Number(f) || f == 0 {
		return d.SizeSquareMeters
	}
	return clampInt(int(math.Round(f)), MinSizeSquareMeters, MaxSizeSquareMeters)
}

func (d FieldDefaults) BedroomsOr(f float64) int {
	if !Number(f) {
		return d.Bedrooms
	}
	return int(math.Round(f))
}

// BathroomsOr snaps to half steps with a floor of one bathroom.
func (d FieldDefaults) BathroomsOr(f float64) float64 {
	if !Number(f) {
		return d.Bathrooms
	}
	return math.Max(1, roundHalf(f))
}

func (d FieldDefaults) DirtinessOr(f float64) int {
	if !Number(f) {
		return d.DirtinessLevel
	}
	return clampInt(int(math.Round(f)), 0, MaxDirtinessLevel)
}

func (d FieldDefaults) LastCleaningOr(f float64) int {
	if !Number(f) {
		return d.LastProfessionalCleaning
	}
	return clampInt(int(math.Round(f)), 0, MaxLastCleaning)
}

// HoursOr snaps booked hours to half hours inside [MinHours, MaxHours].
func (d FieldDefaults) HoursOr(f float64) float64 {
	if !Number(f) || f == 0 {
		return d.Hours
	}
	return math.Min(MaxHours, math.Max(MinHours, roundHalf(f)))
}

// SanitizeProfile replaces unusable values with defaults.
func SanitizeProfile(p domain.PropertyProfile) domain.PropertyProfile {
	d := Defaults
	p.SizeSquareMeters = d.SizeOr(float64(p.SizeSquareMeters))
	p.Bedrooms = d.BedroomsOr(float64(p.Bedrooms))
	p.Bathrooms = d.BathroomsOr(p.Bathrooms)
	p.DirtinessLevel = d.DirtinessOr(float64(p.DirtinessLevel))
	p.LastProfessionalCleaning = d.LastCleaningOr(float64(p.LastProfessionalCleaning))
	if !p.CleaningPace.Valid() {
		p.CleaningPace = d.CleaningPace
	}
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
