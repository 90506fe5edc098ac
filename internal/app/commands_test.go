package app_test

import (
	"context"
	"errors"
	"testing"

	"cleaning_booking/internal/app"
	"cleaning_booking/internal/domain"
	"cleaning_booking/internal/pricing"
)

func newBookingService(repo *fakeRepo, cache *fakeCache) *app.BookingService {
	return app.NewBookingService(pricing.DefaultConfig(), repo, cache, app.Options{
		PhoneRegion: "NL",
		Now:         fixedNow,
		NewID:       seqIDs("id-"),
	})
}

func walkToContact(t *testing.T, svc *app.BookingService, id string) {
	t.Helper()
	ctx := context.Background()
	for _, step := range []map[string]any{
		{"frequency": "bi-weekly"},
		{"sizeSquareMeters": 90, "bedrooms": 2, "bathrooms": 1},
		{"date": "2026-03-09", "timeSlot": "08:30"},
	} {
		if _, err := svc.UpdateFields(ctx, id, step); err != nil {
			t.Fatalf("update %v: %v", step, err)
		}
		if _, err := svc.Next(ctx, id); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if _, err := svc.UpdateFields(ctx, id, map[string]any{
		"name": "Jo Jansen", "email": "jo@example.com", "phone": "+31 20 123 4567",
		"address": "Prinsengracht 2", "postalCode": "1016AA", "city": "Amsterdam",
	}); err != nil {
		t.Fatalf("contact: %v", err)
	}
}

func TestBookingService_FullFlow(t *testing.T) {
	ctx := context.Background()
	repo, cache := &fakeRepo{}, &fakeCache{}
	svc := newBookingService(repo, cache)

	d, err := svc.StartDraft(ctx, domain.ServiceRegular)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.ID != "id-1" || d.Frequency != domain.FrequencyWeekly {
		t.Fatalf("unexpected draft: %+v", d)
	}

	d, err = svc.SelectExtra(ctx, d.ID, "windows", domain.ExtraSelection{Units: 4})
	if err != nil {
		t.Fatalf("select extra: %v", err)
	}
	if d.Quote.ExtrasTotal != 12 {
		t.Fatalf("windows x4 should cost 12, got %v", d.Quote.ExtrasTotal)
	}

	walkToContact(t, svc, d.ID)

	d, rec, err := svc.Submit(ctx, d.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Step != domain.StepSubmitted || d.BookingID != rec.ID || rec.ID != app.BookingIDFor(d.ID) {
		t.Fatalf("unexpected submit result: draft %+v record %+v", d, rec)
	}
	// 3.5h bi-weekly at 30/h plus four windows
	if rec.TotalPrice != 105+12 || rec.Frequency != domain.FrequencyBiWeekly || len(rec.Extras) != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := svc.GetBooking(ctx, rec.ID)
	if err != nil || got.DraftID != d.ID {
		t.Fatalf("get booking: %+v %v", got, err)
	}

	// the lock is gone, so a repeat is rejected by the draft itself
	if _, _, err := svc.Submit(ctx, d.ID); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"notes": "late"}); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("repository called %d times", repo.calls)
	}
}

func TestBookingService_SubmitInFlight(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	svc := newBookingService(&fakeRepo{}, cache)
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)
	walkToContact(t, svc, d.ID)

	// another request is submitting
	if err := cache.Set(ctx, "draft:"+d.ID+":lock", "submit", 15); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Submit(ctx, d.ID); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"city": "Utrecht"}); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("edits during submit must be rejected, got %v", err)
	}

	_ = cache.Del(ctx, "draft:"+d.ID+":lock")
	if _, _, err := svc.Submit(ctx, d.ID); err != nil {
		t.Fatalf("submit after release: %v", err)
	}
}

func TestBookingService_EditLockBlocksSubmitAndEdits(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	repo := &fakeRepo{}
	svc := newBookingService(repo, cache)
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)
	walkToContact(t, svc, d.ID)

	// a PATCH is between load and save
	if err := cache.Set(ctx, "draft:"+d.ID+":lock", "edit", 15); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Submit(ctx, d.ID); !errors.Is(err, domain.ErrDraftBusy) {
		t.Fatalf("expected ErrDraftBusy, got %v", err)
	}
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"city": "Utrecht"}); !errors.Is(err, domain.ErrDraftBusy) {
		t.Fatalf("expected ErrDraftBusy, got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("repository called %d times", repo.calls)
	}

	_ = cache.Del(ctx, "draft:"+d.ID+":lock")
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"city": "Utrecht"}); err != nil {
		t.Fatalf("update after release: %v", err)
	}
	// the update released its own lock
	if _, _, err := svc.Submit(ctx, d.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ok, _ := cache.Get(ctx, "draft:"+d.ID+":lock", new(string)); ok {
		t.Fatal("submit lock was not released")
	}
}

func TestBookingService_StaleDraftResubmitsToSameBooking(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	repo := &fakeRepo{}
	svc := newBookingService(repo, cache)
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)
	walkToContact(t, svc, d.ID)

	stale, err := svc.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, rec, err := svc.Submit(ctx, d.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// an old copy of the draft lands in the cache after the booking was stored
	if err := cache.Set(ctx, "draft:"+d.ID, stale, 60); err != nil {
		t.Fatal(err)
	}

	got, again, err := svc.Submit(ctx, d.ID)
	if err != nil {
		t.Fatalf("resubmit of a stored booking must succeed, got %v", err)
	}
	if got.Step != domain.StepSubmitted || got.BookingID != rec.ID || again.ID != rec.ID || got.LastError != "" {
		t.Fatalf("draft should point at the stored booking: %+v", got)
	}
	stored, _ := svc.GetDraft(ctx, d.ID)
	if stored.Step != domain.StepSubmitted || stored.BookingID != rec.ID {
		t.Fatalf("stored draft not finished: %+v", stored)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("want one stored booking, got %d", len(repo.saved))
	}
}

func TestBookingService_SubmitFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{err: errors.New("connection refused")}
	svc := newBookingService(repo, &fakeCache{})
	d, _ := svc.StartDraft(ctx, domain.ServiceDeep)
	for _, step := range []map[string]any{
		{"frequency": "one-time"},
		{"sizeSquareMeters": 50, "bedrooms": 1, "bathrooms": 1},
		{"date": "2026-03-09", "timeSlot": "08:30"},
	} {
		if _, err := svc.UpdateFields(ctx, d.ID, step); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Next(ctx, d.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{
		"name": "Jo", "email": "jo@example.com", "phone": "0201234567",
		"address": "Dam 1", "postalCode": "1012JS", "city": "Amsterdam",
	}); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.Submit(ctx, d.ID)
	if !errors.Is(err, domain.ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
	stored, err := svc.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Step != domain.StepContactInfo || stored.LastError == "" || stored.Submitting {
		t.Fatalf("failure not recorded on the stored draft: %+v", stored)
	}

	repo.err = nil
	got, rec, err := svc.Submit(ctx, d.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.LastError != "" || rec.TotalPrice != 70 {
		t.Fatalf("unexpected retry result: %+v %+v", got, rec)
	}
}

func TestBookingService_PartialUpdateIsSaved(t *testing.T) {
	ctx := context.Background()
	svc := newBookingService(&fakeRepo{}, &fakeCache{})
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)

	_, err := svc.UpdateFields(ctx, d.ID, map[string]any{"bedrooms": 3, "cleaningPace": "turbo"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	stored, _ := svc.GetDraft(ctx, d.ID)
	if stored.Property.Bedrooms != 3 {
		t.Fatalf("valid field of the batch was not saved: %+v", stored.Property)
	}

	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"totalPrice": 1}); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestBookingService_AcceptUpsell(t *testing.T) {
	ctx := context.Background()
	svc := newBookingService(&fakeRepo{}, &fakeCache{})
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)

	if _, err := svc.AcceptUpsell(ctx, d.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("nothing to accept yet, got %v", err)
	}

	d, err := svc.UpdateFields(ctx, d.ID, map[string]any{"sizeSquareMeters": 200, "bedrooms": 3, "bathrooms": 2})
	if err != nil || !d.Upsell.Visible {
		t.Fatalf("upsell should show: %+v %v", d.Upsell, err)
	}

	deep, err := svc.AcceptUpsell(ctx, d.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if deep.ID == d.ID || deep.ServiceType != domain.ServiceDeep || deep.Frequency != domain.FrequencyOneTime {
		t.Fatalf("unexpected upsell draft: %+v", deep)
	}
	if deep.Property.SizeSquareMeters != 200 || deep.Property.Bathrooms != 2 {
		t.Fatalf("property not carried over: %+v", deep.Property)
	}
	if deep.Upsell.Visible {
		t.Fatal("deep cleaning has nothing to upsell")
	}
	if _, err := svc.GetDraft(ctx, d.ID); err != nil {
		t.Fatalf("original draft should stay: %v", err)
	}

	d, err = svc.DismissUpsell(ctx, d.ID)
	if err != nil || d.Upsell.Visible {
		t.Fatalf("dismiss: %+v %v", d.Upsell, err)
	}
	stored, _ := svc.GetDraft(ctx, d.ID)
	if stored.Upsell.Visible || !stored.Upsell.Dismissed {
		t.Fatalf("dismissal must survive a reload: %+v", stored.Upsell)
	}
}

func TestBookingService_Abandon(t *testing.T) {
	ctx := context.Background()
	svc := newBookingService(&fakeRepo{}, &fakeCache{})
	d, _ := svc.StartDraft(ctx, domain.ServicePostConstruction)

	if err := svc.Abandon(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetDraft(ctx, d.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Next(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingService_UpsellEvents(t *testing.T) {
	ctx := context.Background()
	var events []string
	svc := app.NewBookingService(pricing.DefaultConfig(), &fakeRepo{}, &fakeCache{}, app.Options{
		PhoneRegion: "NL",
		Now:         fixedNow,
		OnUpsell:    func(e string) { events = append(events, e) },
	})
	d, _ := svc.StartDraft(ctx, domain.ServiceRegular)

	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"sizeSquareMeters": 60, "bedrooms": 1, "bathrooms": 3}); err != nil {
		t.Fatal(err)
	}
	// still visible, not shown again
	if _, err := svc.UpdateFields(ctx, d.ID, map[string]any{"hours": 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DismissUpsell(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DismissUpsell(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptUpsell(ctx, d.ID); err != nil {
		t.Fatal(err)
	}

	want := []string{"shown", "dismissed", "accepted"}
	if len(events) != len(want) {
		t.Fatalf("events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events %v, want %v", events, want)
		}
	}
}
