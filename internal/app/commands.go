package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cleaning_booking/internal/domain"
	"cleaning_booking/internal/pricing"
)

type Options struct {
	DraftTTL      time.Duration
	SubmitTimeout time.Duration
	SubmitLockTTL time.Duration
	PhoneRegion   string
	Now           func() time.Time
	NewID         func() string
	// OnUpsell receives "shown", "dismissed" and "accepted".
	OnUpsell func(event string)
}

// BookingService runs one orchestrator event per call: load the draft, apply, save.
type BookingService struct {
	cfg   *pricing.Config
	repo  domain.BookingRepository
	cache domain.Cache
	sv    *StepValidator
	opts  Options
}

func NewBookingService(cfg *pricing.Config, r domain.BookingRepository, cache domain.Cache, opts Options) *BookingService {
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = 2 * time.Hour
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 10 * time.Second
	}
	if opts.SubmitLockTTL <= 0 {
		opts.SubmitLockTTL = opts.SubmitTimeout + 5*time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.OnUpsell == nil {
		opts.OnUpsell = func(string) {}
	}
	return &BookingService{
		cfg:   cfg,
		repo:  r,
		cache: cache,
		sv:    NewStepValidator(opts.PhoneRegion, opts.Now),
		opts:  opts,
	}
}

func draftKey(id string) string { return fmt.Sprintf("draft:%s", id) }
func lockKey(id string) string  { return fmt.Sprintf("draft:%s:lock", id) }

// Lock holders. Every load-apply-save cycle holds the draft lock so a stale copy can
// never overwrite a submitted draft.
const (
	holderSubmit = "submit"
	holderEdit   = "edit"
)

var bookingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cleaning_booking/bookings"))

// BookingIDFor derives the booking id of a draft. A resubmitted draft always maps to
// the booking it already produced.
func BookingIDFor(draftID string) string {
	return uuid.NewSHA1(bookingNamespace, []byte(draftID)).String()
}

func (s *BookingService) StartDraft(ctx context.Context, st domain.ServiceType) (domain.BookingDraft, error) {
	o, err := NewDraft(s.opts.NewID(), st, s.cfg, s.sv, s.opts.Now)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	if err := s.save(ctx, o); err != nil {
		return domain.BookingDraft{}, err
	}
	log.Info().Str("draft", o.d.ID).Str("service", string(st)).Msg("draft started")
	return o.Draft(), nil
}

func (s *BookingService) GetDraft(ctx context.Context, id string) (domain.BookingDraft, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	return o.Draft(), nil
}

func (s *BookingService) UpdateFields(ctx context.Context, id string, fields map[string]any) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error { return o.Apply(fields) })
}

func (s *BookingService) SelectExtra(ctx context.Context, id, extraID string, sel domain.ExtraSelection) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error { return o.SelectExtra(extraID, sel) })
}

func (s *BookingService) DeselectExtra(ctx context.Context, id, extraID string) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error { return o.DeselectExtra(extraID) })
}

func (s *BookingService) Next(ctx context.Context, id string) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error { return o.Next() })
}

func (s *BookingService) Back(ctx context.Context, id string) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error { return o.Back() })
}

func (s *BookingService) DismissUpsell(ctx context.Context, id string) (domain.BookingDraft, error) {
	return s.mutate(ctx, id, func(o *Orchestrator) error {
		if o.d.Upsell.Visible {
			s.opts.OnUpsell("dismissed")
		}
		o.DismissUpsell()
		return nil
	})
}

// AcceptUpsell starts a draft in the recommended flow, prefilled with the property
// inputs of the current one. The current draft is left as it was.
func (s *BookingService) AcceptUpsell(ctx context.Context, id string) (domain.BookingDraft, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	target, err := o.AcceptUpsell()
	if err != nil {
		return domain.BookingDraft{}, err
	}
	next, err := NewDraft(s.opts.NewID(), target, s.cfg, s.sv, s.opts.Now)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	p := o.d.Property
	if err := next.Apply(map[string]any{
		FieldSize:         p.SizeSquareMeters,
		FieldBedrooms:     p.Bedrooms,
		FieldBathrooms:    p.Bathrooms,
		FieldDirtiness:    p.DirtinessLevel,
		FieldLastCleaning: p.LastProfessionalCleaning,
		FieldPace:         string(p.CleaningPace),
	}); err != nil {
		return domain.BookingDraft{}, err
	}
	if err := s.save(ctx, next); err != nil {
		return domain.BookingDraft{}, err
	}
	s.opts.OnUpsell("accepted")
	log.Info().Str("from", id).Str("draft", next.d.ID).Str("service", string(target)).Msg("upsell accepted")
	return next.Draft(), nil
}

// Submit persists the booking. Only one submission per draft may be in flight; a failed
// submission leaves the draft at ContactInfo with LastError set.
func (s *BookingService) Submit(ctx context.Context, id string) (domain.BookingDraft, domain.BookingRecord, error) {
	release, err := s.lock(ctx, id, holderSubmit)
	if err != nil {
		return domain.BookingDraft{}, domain.BookingRecord{}, err
	}
	defer release()

	o, err := s.load(ctx, id)
	if err != nil {
		return domain.BookingDraft{}, domain.BookingRecord{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	rec, serr := o.Submit(sctx, s.repo, BookingIDFor(id))
	cancel()

	if serr == nil || errors.Is(serr, domain.ErrSubmitFailed) {
		if err := s.save(context.WithoutCancel(ctx), o); err != nil {
			log.Error().Err(err).Str("draft", id).Msg("save draft after submit failed")
		}
	}
	return o.Draft(), rec, serr
}

// Abandon discards the draft. Nothing was persisted for it.
func (s *BookingService) Abandon(ctx context.Context, id string) error {
	return s.cache.Del(ctx, draftKey(id))
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (domain.BookingRecord, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) mutate(ctx context.Context, id string, fn func(*Orchestrator) error) (domain.BookingDraft, error) {
	release, err := s.lock(ctx, id, holderEdit)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	defer release()

	o, err := s.load(ctx, id)
	if err != nil {
		return domain.BookingDraft{}, err
	}
	wasVisible := o.d.Upsell.Visible
	ferr := fn(o)
	if !wasVisible && o.d.Upsell.Visible {
		s.opts.OnUpsell("shown")
	}
	if ferr != nil && !errors.Is(ferr, domain.ErrValidation) {
		return o.Draft(), ferr
	}
	// validation failures may still have applied the valid fields of a batch
	if err := s.save(ctx, o); err != nil {
		return domain.BookingDraft{}, err
	}
	return o.Draft(), ferr
}

// lock takes the per-draft lock for holder. A lock held by a submission reports
// ErrSubmitInFlight, any other holder ErrDraftBusy.
func (s *BookingService) lock(ctx context.Context, id, holder string) (func(), error) {
	ok, err := s.cache.SetNX(ctx, lockKey(id), holder, int(s.opts.SubmitLockTTL.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("acquire draft lock: %w", err)
	}
	if !ok {
		var current string
		if _, err := s.cache.Get(ctx, lockKey(id), &current); err == nil && current == holderSubmit {
			return nil, domain.ErrSubmitInFlight
		}
		return nil, domain.ErrDraftBusy
	}
	return func() {
		// the request context may be done by now
		if err := s.cache.Del(context.WithoutCancel(ctx), lockKey(id)); err != nil {
			log.Warn().Err(err).Str("draft", id).Str("holder", holder).Msg("release draft lock failed")
		}
	}, nil
}

func (s *BookingService) load(ctx context.Context, id string) (*Orchestrator, error) {
	var d domain.BookingDraft
	ok, err := s.cache.Get(ctx, draftKey(id), &d)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, domain.ErrNotFound)
	}
	return Resume(d, s.cfg, s.sv, s.opts.Now), nil
}

func (s *BookingService) save(ctx context.Context, o *Orchestrator) error {
	if err := s.cache.Set(ctx, draftKey(o.d.ID), o.Draft(), int(s.opts.DraftTTL.Seconds())); err != nil {
		return fmt.Errorf("save draft %s: %w", o.d.ID, err)
	}
	return nil
}
