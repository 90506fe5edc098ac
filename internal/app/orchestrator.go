package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cleaning_booking/internal/domain"
	"cleaning_booking/internal/pricing"
)

// form field names accepted by Get/Set
const (
	FieldServiceType  = "serviceType"
	FieldSize         = "sizeSquareMeters"
	FieldBedrooms     = "bedrooms"
	FieldBathrooms    = "bathrooms"
	FieldDirtiness    = "dirtinessLevel"
	FieldLastCleaning = "lastProfessionalCleaning"
	FieldPace         = "cleaningPace"
	FieldHours        = "hours"
	FieldFrequency    = "frequency"
	FieldDate         = "date"
	FieldTimeSlot     = "timeSlot"
	FieldName         = "name"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldAddress      = "address"
	FieldPostalCode   = "postalCode"
	FieldCity         = "city"
	FieldNotes        = "notes"
)

var settable = map[string]bool{
	FieldSize: true, FieldBedrooms: true, FieldBathrooms: true, FieldDirtiness: true,
	FieldLastCleaning: true, FieldPace: true, FieldHours: true, FieldFrequency: true,
	FieldDate: true, FieldTimeSlot: true, FieldName: true, FieldEmail: true, FieldPhone: true,
	FieldAddress: true, FieldPostalCode: true, FieldCity: true, FieldNotes: true,
}

// upsell target per booking flow; flows without an entry never show the prompt
var upsellTargets = map[domain.ServiceType]domain.ServiceType{
	domain.ServiceRegular: domain.ServiceDeep,
}

// FrequencyAllowed reports whether a flow offers a frequency. Only regular cleaning recurs.
func FrequencyAllowed(s domain.ServiceType, f domain.FrequencyTier) bool {
	if s == domain.ServiceRegular {
		return f.Valid()
	}
	return f == domain.FrequencyOneTime
}

// Orchestrator owns one BookingDraft for a form session. Every mutation recomputes
// the estimate, the upsell decision and the quote before returning.
type Orchestrator struct {
	d   domain.BookingDraft
	cfg *pricing.Config
	sv  *StepValidator
	now func() time.Time
}

// NewDraft starts a booking flow with the defaults of its service type.
func NewDraft(id string, st domain.ServiceType, cfg *pricing.Config, sv *StepValidator, now func() time.Time) (*Orchestrator, error) {
	if !st.Valid() {
		verr := &domain.ValidationError{}
		verr.Add(FieldServiceType, "must be one of: regular deep move_in_out post_construction")
		return nil, verr
	}
	if now == nil {
		now = time.Now
	}
	def := pricing.Defaults
	ts := now().UTC()
	o := &Orchestrator{
		cfg: cfg,
		sv:  sv,
		now: now,
		d: domain.BookingDraft{
			ID:          id,
			ServiceType: st,
			Step:        domain.StepServiceDetails,
			Property: domain.PropertyProfile{
				SizeSquareMeters:         def.SizeSquareMeters,
				Bedrooms:                 def.Bedrooms,
				Bathrooms:                def.Bathrooms,
				DirtinessLevel:           def.DirtinessLevel,
				LastProfessionalCleaning: def.LastProfessionalCleaning,
				CleaningPace:             def.CleaningPace,
			},
			Hours:          def.Hours,
			Frequency:      def.FrequencyFor(st),
			SelectedExtras: map[string]domain.ExtraSelection{},
			Provided:       map[string]bool{},
			CreatedAt:      ts,
			UpdatedAt:      ts,
		},
	}
	o.recompute()
	return o, nil
}

// Resume wraps a stored draft. Derived values are refreshed against the current
// pricing configuration unless the draft was already submitted.
func Resume(d domain.BookingDraft, cfg *pricing.Config, sv *StepValidator, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	if d.SelectedExtras == nil {
		d.SelectedExtras = map[string]domain.ExtraSelection{}
	}
	if d.Provided == nil {
		d.Provided = map[string]bool{}
	}
	o := &Orchestrator{d: d, cfg: cfg, sv: sv, now: now}
	if d.Step != domain.StepSubmitted {
		o.recompute()
	}
	return o
}

// Draft returns a copy of the current state.
func (o *Orchestrator) Draft() domain.BookingDraft {
	d := o.d
	d.SelectedExtras = maps.Clone(o.d.SelectedExtras)
	d.Provided = maps.Clone(o.d.Provided)
	d.Quote.Extras = append([]domain.ExtraLine(nil), o.d.Quote.Extras...)
	return d
}

// Get reads a form field by name.
func (o *Orchestrator) Get(field string) (any, error) {
	d := &o.d
	switch field {
	case FieldServiceType:
		return d.ServiceType, nil
	case FieldSize:
		return d.Property.SizeSquareMeters, nil
	case FieldBedrooms:
		return d.Property.Bedrooms, nil
	case FieldBathrooms:
		return d.Property.Bathrooms, nil
	case FieldDirtiness:
		return d.Property.DirtinessLevel, nil
	case FieldLastCleaning:
		return d.Property.LastProfessionalCleaning, nil
	case FieldPace:
		return d.Property.CleaningPace, nil
	case FieldHours:
		return d.Hours, nil
	case FieldFrequency:
		return d.Frequency, nil
	case FieldDate:
		return d.Schedule.Date, nil
	case FieldTimeSlot:
		return d.Schedule.TimeSlot, nil
	case FieldName:
		return d.Contact.Name, nil
	case FieldEmail:
		return d.Contact.Email, nil
	case FieldPhone:
		return d.Contact.Phone, nil
	case FieldAddress:
		return d.Contact.Address, nil
	case FieldPostalCode:
		return d.Contact.PostalCode, nil
	case FieldCity:
		return d.Contact.City, nil
	case FieldNotes:
		return d.Contact.Notes, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
}

// Set writes one form field and recomputes.
func (o *Orchestrator) Set(field string, value any) error {
	return o.Apply(map[string]any{field: value})
}

// Apply writes several fields at once. Unknown fields reject the whole batch; fields that
// fail validation are reported while the others are still applied.
func (o *Orchestrator) Apply(fields map[string]any) error {
	if err := o.mutable(); err != nil {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		if !settable[name] {
			return fmt.Errorf("%w: %s", domain.ErrUnknownField, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	verr := &domain.ValidationError{}
	for _, name := range names {
		if msg := o.set(name, fields[name]); msg != "" {
			verr.Add(name, msg)
			continue
		}
		o.d.Provided[name] = true
	}
	o.touch()
	return verr.OrNil()
}

// set returns a validation message, or "" when the value was taken.
func (o *Orchestrator) set(field string, v any) string {
	d := &o.d
	def := pricing.Defaults
	switch field {
	case FieldSize:
		d.Property.SizeSquareMeters = def.SizeOr(toNumber(v))
	case FieldBedrooms:
		d.Property.Bedrooms = def.BedroomsOr(toNumber(v))
	case FieldBathrooms:
		d.Property.Bathrooms = def.BathroomsOr(toNumber(v))
	case FieldDirtiness:
		d.Property.DirtinessLevel = def.DirtinessOr(toNumber(v))
	case FieldLastCleaning:
		d.Property.LastProfessionalCleaning = def.LastCleaningOr(toNumber(v))
	case FieldPace:
		pace := domain.CleaningPace(strings.ToLower(toString(v)))
		if pace == "" {
			pace = def.CleaningPace
		}
		if !pace.Valid() {
			return "must be one of: standard quick"
		}
		d.Property.CleaningPace = pace
	case FieldHours:
		if v == nil {
			// clearing the field hands hours back to the estimate
			d.HoursOverridden = false
			return ""
		}
		d.Hours = def.HoursOr(toNumber(v))
		d.HoursOverridden = true
	case FieldFrequency:
		f := domain.FrequencyTier(strings.ToLower(toString(v)))
		if !f.Valid() {
			return "must be one of: one-time weekly bi-weekly monthly"
		}
		if !FrequencyAllowed(d.ServiceType, f) {
			return fmt.Sprintf("%s is not offered for %s cleaning", f, d.ServiceType)
		}
		d.Frequency = f
	case FieldDate:
		d.Schedule.Date = toString(v)
	case FieldTimeSlot:
		d.Schedule.TimeSlot = toString(v)
	case FieldName:
		d.Contact.Name = toString(v)
	case FieldEmail:
		d.Contact.Email = strings.ToLower(toString(v))
	case FieldPhone:
		raw := toString(v)
		if e164, err := o.sv.NormalizePhone(raw); err == nil {
			raw = e164
		}
		d.Contact.Phone = raw
	case FieldAddress:
		d.Contact.Address = toString(v)
	case FieldPostalCode:
		d.Contact.PostalCode = strings.ToUpper(toString(v))
	case FieldCity:
		d.Contact.City = toString(v)
	case FieldNotes:
		d.Contact.Notes = toString(v)
	}
	return ""
}

// SelectExtra adds an extra or changes its quantity.
func (o *Orchestrator) SelectExtra(id string, sel domain.ExtraSelection) error {
	if err := o.mutable(); err != nil {
		return err
	}
	opt, ok := o.cfg.Extra(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownExtra, id)
	}
	o.d.SelectedExtras[id] = pricing.NormalizeSelection(opt.Cost, sel)
	o.touch()
	return nil
}

func (o *Orchestrator) DeselectExtra(id string) error {
	if err := o.mutable(); err != nil {
		return err
	}
	if _, ok := o.cfg.Extra(id); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownExtra, id)
	}
	delete(o.d.SelectedExtras, id)
	o.touch()
	return nil
}

// Next moves forward when the current step validates. ContactInfo only leaves through Submit.
func (o *Orchestrator) Next() error {
	if err := o.mutable(); err != nil {
		return err
	}
	if o.d.Step >= domain.StepContactInfo {
		return fmt.Errorf("%w: submit to leave %s", domain.ErrInvalidTransition, o.d.Step)
	}
	if err := o.sv.Validate(o.d.Step, o.d); err != nil {
		return err
	}
	from := o.d.Step
	o.d.Step++
	o.touch()
	log.Debug().Str("draft", o.d.ID).Str("from", from.String()).Str("to", o.d.Step.String()).Msg("step forward")
	return nil
}

func (o *Orchestrator) Back() error {
	if err := o.mutable(); err != nil {
		return err
	}
	if o.d.Step == domain.StepServiceDetails {
		return fmt.Errorf("%w: already at %s", domain.ErrInvalidTransition, o.d.Step)
	}
	o.d.Step--
	o.touch()
	return nil
}

// DismissUpsell hides the prompt for the current property inputs. It is a no-op when
// nothing is shown, so a dismissal racing an input change never fails.
func (o *Orchestrator) DismissUpsell() {
	u := &o.d.Upsell
	if !u.Visible {
		return
	}
	u.Dismissed = true
	u.DismissedFor = pricing.UpsellKey(o.d.Property)
	u.Visible = false
	o.d.UpdatedAt = o.now().UTC()
}

// AcceptUpsell returns the flow the user should be sent to. The draft itself is not changed.
func (o *Orchestrator) AcceptUpsell() (domain.ServiceType, error) {
	if !o.d.Upsell.Recommended {
		return "", fmt.Errorf("%w: no upsell recommended", domain.ErrInvalidTransition)
	}
	return o.d.Upsell.Target, nil
}

// Submit hands the finalized draft to the repository. On failure the draft stays at
// ContactInfo with LastError set and can be submitted again.
func (o *Orchestrator) Submit(ctx context.Context, repo domain.BookingRepository, bookingID string) (domain.BookingRecord, error) {
	if err := o.mutable(); err != nil {
		return domain.BookingRecord{}, err
	}
	if o.d.Step != domain.StepContactInfo {
		return domain.BookingRecord{}, fmt.Errorf("%w: cannot submit from %s", domain.ErrInvalidTransition, o.d.Step)
	}
	if err := o.sv.ValidateThrough(domain.StepContactInfo, o.d); err != nil {
		return domain.BookingRecord{}, err
	}
	o.recompute()
	rec := o.record(bookingID)

	o.d.Submitting = true
	err := repo.SaveBooking(ctx, rec)
	o.d.Submitting = false
	o.d.UpdatedAt = o.now().UTC()
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		// an earlier attempt stored this booking; the draft just never heard back
		log.Info().Str("draft", o.d.ID).Str("booking", rec.ID).Msg("booking already stored")
		err = nil
	}
	if err != nil {
		o.d.LastError = "We could not save your booking. Please try again."
		log.Warn().Err(err).Str("draft", o.d.ID).Msg("booking submission failed")
		return domain.BookingRecord{}, fmt.Errorf("%w: %w", domain.ErrSubmitFailed, err)
	}
	o.d.LastError = ""
	o.d.BookingID = rec.ID
	o.d.Step = domain.StepSubmitted
	log.Info().Str("draft", o.d.ID).Str("booking", rec.ID).Float64("total", rec.TotalPrice).Msg("booking submitted")
	return rec, nil
}

func (o *Orchestrator) mutable() error {
	switch {
	case o.d.Step == domain.StepSubmitted:
		return domain.ErrAlreadySubmitted
	case o.d.Submitting:
		return domain.ErrSubmitInFlight
	}
	return nil
}

func (o *Orchestrator) touch() {
	o.d.UpdatedAt = o.now().UTC()
	o.recompute()
}

func (o *Orchestrator) recompute() {
	d := &o.d
	d.Property = pricing.SanitizeProfile(d.Property)
	if !d.Frequency.Valid() || !FrequencyAllowed(d.ServiceType, d.Frequency) {
		d.Frequency = pricing.Defaults.FrequencyFor(d.ServiceType)
	}
	est := pricing.Estimate(d.Property)
	d.SuggestedHours = est.Hours
	if !d.HoursOverridden {
		d.Hours = est.Hours
	}
	d.Hours = pricing.Defaults.HoursOr(d.Hours)

	d.Quote = o.cfg.ComputeTotal(d.Frequency, d.Hours, d.SelectedExtras)
	d.FinalPrice = d.Quote.Total
	d.EstimatedPrice = o.cfg.ComputeTotal(d.Frequency, d.SuggestedHours, d.SelectedExtras).Total

	o.evaluateUpsell(est)
}

func (o *Orchestrator) evaluateUpsell(est domain.DurationEstimate) {
	d := &o.d
	u := &d.Upsell
	target, ok := upsellTargets[d.ServiceType]
	if !ok || !o.propertyComplete() {
		*u = domain.UpsellState{Dismissed: u.Dismissed, DismissedFor: u.DismissedFor}
		return
	}
	wasVisible := u.Visible
	u.Target = target
	u.Recommended = est.UpsellRecommended
	if key := pricing.UpsellKey(d.Property); u.Dismissed && u.DismissedFor != key {
		u.Dismissed = false
		u.DismissedFor = ""
	}
	u.Visible = u.Recommended && !u.Dismissed
	if u.Visible && !wasVisible {
		log.Debug().Str("draft", d.ID).Float64("standard_hours", est.StandardHours).
			Float64("bathrooms", d.Property.Bathrooms).Msg("upsell suggested")
	}
}

// propertyComplete is true once the user has filled the property inputs or moved past them.
func (o *Orchestrator) propertyComplete() bool {
	d := &o.d
	if d.Step > domain.StepPropertyDetails {
		return true
	}
	return d.Provided[FieldSize] && d.Provided[FieldBedrooms] && d.Provided[FieldBathrooms]
}

func (o *Orchestrator) record(bookingID string) domain.BookingRecord {
	d := &o.d
	extras := make([]domain.BookingExtra, 0, len(d.Quote.Extras))
	for _, l := range d.Quote.Extras {
		extras = append(extras, domain.BookingExtra{
			ExtraID: l.ID, Units: l.Selection.Units, Minutes: l.Selection.Minutes, Amount: l.Amount,
		})
	}
	return domain.BookingRecord{
		ID:            bookingID,
		DraftID:       d.ID,
		ServiceType:   d.ServiceType,
		Property:      d.Property,
		Hours:         d.Quote.Hours,
		Frequency:     d.Quote.Frequency,
		HourlyRate:    d.Quote.HourlyRate,
		BasePrice:     d.Quote.Base,
		ExtrasTotal:   d.Quote.ExtrasTotal,
		TotalPrice:    d.Quote.Total,
		Extras:        extras,
		ScheduledDate: d.Schedule.Date,
		TimeSlot:      d.Schedule.TimeSlot,
		Contact:       d.Contact,
		CreatedAt:     o.now().UTC(),
	}
}

// toNumber turns a decoded form value into a float; anything unusable becomes NaN.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(n, ",", ".")), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
