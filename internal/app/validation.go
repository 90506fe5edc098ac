package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"cleaning_booking/internal/domain"
)

// per-step views of the draft; field names in messages are the form field names.
type serviceDetailsForm struct {
	ServiceType string `validate:"required,oneof=regular deep move_in_out post_construction" field:"serviceType"`
	Frequency   string `validate:"required,oneof=one-time weekly bi-weekly monthly" field:"frequency"`
}

type propertyDetailsForm struct {
	SizeSquareMeters         int     `validate:"gte=20,lte=500" field:"sizeSquareMeters"`
	Bedrooms                 int     `validate:"gte=0,lte=20" field:"bedrooms"`
	Bathrooms                float64 `validate:"gte=1,lte=10" field:"bathrooms"`
	DirtinessLevel           int     `validate:"gte=0,lte=5" field:"dirtinessLevel"`
	LastProfessionalCleaning int     `validate:"gte=0,lte=5" field:"lastProfessionalCleaning"`
	CleaningPace             string  `validate:"required,oneof=standard quick" field:"cleaningPace"`
}

type schedulingForm struct {
	Date     string  `validate:"required,datetime=2006-01-02" field:"date"`
	TimeSlot string  `validate:"required,datetime=15:04" field:"timeSlot"`
	Hours    float64 `validate:"gte=2,lte=8" field:"hours"`
}

type contactForm struct {
	Name       string `validate:"required,max=120" field:"name"`
	Email      string `validate:"required,email" field:"email"`
	Phone      string `validate:"required" field:"phone"`
	Address    string `validate:"required,max=255" field:"address"`
	PostalCode string `validate:"required,max=16" field:"postalCode"`
	City       string `validate:"required,max=120" field:"city"`
}

// StepValidator checks that a wizard step has its required fields.
type StepValidator struct {
	v           *validator.Validate
	phoneRegion string
	now         func() time.Time
}

func NewStepValidator(phoneRegion string, now func() time.Time) *StepValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("field") })
	if phoneRegion == "" {
		phoneRegion = "DE"
	}
	if now == nil {
		now = time.Now
	}
	return &StepValidator{v: v, phoneRegion: strings.ToUpper(phoneRegion), now: now}
}

// Validate checks one step of the draft.
func (sv *StepValidator) Validate(step domain.Step, d domain.BookingDraft) error {
	switch step {
	case domain.StepServiceDetails:
		verr := &domain.ValidationError{}
		sv.collect(verr, serviceDetailsForm{ServiceType: string(d.ServiceType), Frequency: string(d.Frequency)})
		if d.Frequency.Valid() && !FrequencyAllowed(d.ServiceType, d.Frequency) {
			verr.Add("frequency", fmt.Sprintf("%s is not offered for %s cleaning", d.Frequency, d.ServiceType))
		}
		return verr.OrNil()
	case domain.StepPropertyDetails:
		p := d.Property
		verr := &domain.ValidationError{}
		sv.collect(verr, propertyDetailsForm{
			SizeSquareMeters:         p.SizeSquareMeters,
			Bedrooms:                 p.Bedrooms,
			Bathrooms:                p.Bathrooms,
			DirtinessLevel:           p.DirtinessLevel,
			LastProfessionalCleaning: p.LastProfessionalCleaning,
			CleaningPace:             string(p.CleaningPace),
		})
		return verr.OrNil()
	case domain.StepScheduling:
		verr := &domain.ValidationError{}
		sv.collect(verr, schedulingForm{Date: d.Schedule.Date, TimeSlot: d.Schedule.TimeSlot, Hours: d.Hours})
		if _, bad := verr.Fields["date"]; !bad {
			day, _ := time.Parse("2006-01-02", d.Schedule.Date)
			today := sv.now().UTC().Truncate(24 * time.Hour)
			if day.Before(today) {
				verr.Add("date", "must not be in the past")
			}
		}
		return verr.OrNil()
	case domain.StepContactInfo:
		c := d.Contact
		verr := &domain.ValidationError{}
		sv.collect(verr, contactForm{
			Name: c.Name, Email: c.Email, Phone: c.Phone,
			Address: c.Address, PostalCode: c.PostalCode, City: c.City,
		})
		if _, bad := verr.Fields["phone"]; !bad {
			if _, err := sv.NormalizePhone(c.Phone); err != nil {
				verr.Add("phone", "is not a valid phone number")
			}
		}
		return verr.OrNil()
	}
	return fmt.Errorf("%w: no form for step %s", domain.ErrInvalidTransition, step)
}

// ValidateThrough checks every step up to and including last.
func (sv *StepValidator) ValidateThrough(last domain.Step, d domain.BookingDraft) error {
	all := &domain.ValidationError{}
	for s := domain.StepServiceDetails; s <= last; s++ {
		err := sv.Validate(s, d)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Fields {
				all.Add(k, v)
			}
		} else if err != nil {
			return err
		}
	}
	return all.OrNil()
}

// NormalizePhone returns the E.164 form of a phone number.
func (sv *StepValidator) NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), sv.phoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (sv *StepValidator) collect(verr *domain.ValidationError, form any) {
	err := sv.v.Struct(form)
	if err == nil {
		return
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		verr.Add("_form", err.Error())
		return
	}
	for _, fe := range ves {
		verr.Add(fe.Field(), message(fe))
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "is too long"
	case "datetime":
		return "must match " + fe.Param()
	}
	return "is invalid"
}
