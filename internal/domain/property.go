package domain

type CleaningPace string

const (
	PaceStandard CleaningPace = "standard"
	PaceQuick    CleaningPace = "quick"
)

func (p CleaningPace) Valid() bool { return p == PaceStandard || p == PaceQuick }

// PropertyProfile holds the attributes the duration estimate is derived from.
// Bedrooms == 0 means studio. DirtinessLevel and LastProfessionalCleaning are
// ordinal buckets, not quantities.
type PropertyProfile struct {
	SizeSquareMeters         int          `json:"sizeSquareMeters"`
	Bedrooms                 int          `json:"bedrooms"`
	Bathrooms                float64      `json:"bathrooms"`
	DirtinessLevel           int          `json:"dirtinessLevel"`
	LastProfessionalCleaning int          `json:"lastProfessionalCleaning"`
	CleaningPace             CleaningPace `json:"cleaningPace"`
}

// DurationEstimate is never stored on its own; it is recomputed from a PropertyProfile.
type DurationEstimate struct {
	Hours             float64 `json:"hours"`
	StandardHours     float64 `json:"standardHours"`
	UpsellRecommended bool    `json:"upsellRecommended"`
}
