package domain

import "time"

type ServiceType string

const (
	ServiceRegular          ServiceType = "regular"
	ServiceDeep             ServiceType = "deep"
	ServiceMoveInOut        ServiceType = "move_in_out"
	ServicePostConstruction ServiceType = "post_construction"
)

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceRegular, ServiceDeep, ServiceMoveInOut, ServicePostConstruction:
		return true
	}
	return false
}

// Step is a wizard state. Order matters: forward moves are Step+1.
type Step int

const (
	StepServiceDetails Step = iota
	StepPropertyDetails
	StepScheduling
	StepContactInfo
	StepSubmitted
)

var stepNames = [...]string{"service_details", "property_details", "scheduling", "contact_info", "submitted"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

type UpsellState struct {
	Recommended bool        `json:"recommended"`
	Visible     bool        `json:"visible"`
	Dismissed   bool        `json:"dismissed"`
	Target      ServiceType `json:"target,omitempty"`
	// DismissedFor identifies the property inputs the prompt was dismissed for.
	DismissedFor string `json:"dismissedFor,omitempty"`
}

type Schedule struct {
	Date     string `json:"date,omitempty"`     // YYYY-MM-DD
	TimeSlot string `json:"timeSlot,omitempty"` // HH:MM
}

type Contact struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// BookingDraft is the form-session aggregate. Prices are derived and never set by the user.
type BookingDraft struct {
	ID              string                    `json:"id"`
	ServiceType     ServiceType               `json:"serviceType"`
	Step            Step                      `json:"step"`
	Property        PropertyProfile           `json:"property"`
	Hours           float64                   `json:"hours"`
	HoursOverridden bool                      `json:"hoursOverridden"`
	SuggestedHours  float64                   `json:"suggestedHours"`
	Frequency       FrequencyTier             `json:"frequency"`
	SelectedExtras  map[string]ExtraSelection `json:"selectedExtras"`
	Quote           Quote                     `json:"quote"`
	EstimatedPrice  float64                   `json:"estimatedPrice"`
	FinalPrice      float64                   `json:"finalPrice"`
	Upsell          UpsellState               `json:"upsell"`
	Schedule        Schedule                  `json:"schedule"`
	Contact         Contact                   `json:"contact"`
	Provided        map[string]bool           `json:"provided,omitempty"`
	Submitting      bool                      `json:"submitting"`
	LastError       string                    `json:"lastError,omitempty"`
	BookingID       string                    `json:"bookingId,omitempty"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

type BookingExtra struct {
	ExtraID string  `json:"extraId"`
	Units   int     `json:"units,omitempty"`
	Minutes int     `json:"minutes,omitempty"`
	Amount  float64 `json:"amount"`
}

// BookingRecord is the flat record handed to the persistence collaborator on submit.
type BookingRecord struct {
	ID            string          `json:"id"`
	DraftID       string          `json:"draft_id"`
	ServiceType   ServiceType     `json:"service_type"`
	Property      PropertyProfile `json:"property"`
	Hours         float64         `json:"hours"`
	Frequency     FrequencyTier   `json:"frequency"`
	HourlyRate    float64         `json:"hourly_rate"`
	BasePrice     float64         `json:"base_price"`
	ExtrasTotal   float64         `json:"extras_total"`
	TotalPrice    float64         `json:"total_price"`
	Extras        []BookingExtra  `json:"extras"`
	ScheduledDate string          `json:"scheduled_date"`
	TimeSlot      string          `json:"time_slot"`
	Contact       Contact         `json:"contact"`
	CreatedAt     time.Time       `json:"created_at"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
}
