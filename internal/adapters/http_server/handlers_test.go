package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	server "cleaning_booking/internal/adapters/http_server"
	redisad "cleaning_booking/internal/adapters/redis"
	"cleaning_booking/internal/app"
	"cleaning_booking/internal/domain"
	"cleaning_booking/internal/pricing"
)

type memRepo struct {
	mu   sync.Mutex
	fail bool
	rows map[string]domain.BookingRecord
}

func (m *memRepo) SaveBooking(ctx context.Context, b domain.BookingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	if m.rows == nil {
		m.rows = map[string]domain.BookingRecord{}
	}
	m.rows[b.ID] = b
	return nil
}
func (m *memRepo) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memRepo) MarkSynced(ctx context.Context, id string, at time.Time) error { return nil }
func (m *memRepo) GetBooking(ctx context.Context, id string) (domain.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return domain.BookingRecord{}, domain.ErrNotFound
	}
	return b, nil
}
func (m *memRepo) ListUnsynced(ctx context.Context, limit int) ([]domain.BookingRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, repo *memRepo) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	cfg := pricing.DefaultConfig()
	now := func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	srv := server.New(5 * time.Second)
	srv.MountHandlers(&server.Handlers{
		Q: app.NewQuoteService(cfg),
		B: app.NewBookingService(cfg, repo, cache, app.Options{PhoneRegion: "NL", Now: now}),
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, url, rdr)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	return res, buf.Bytes()
}

func TestPricing_ETag(t *testing.T) {
	ts := newTestServer(t, &memRepo{})

	res, body := do(t, http.MethodGet, ts.URL+"/v1/pricing", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, body)
	}
	var view app.PricingView
	if err := json.Unmarshal(body, &view); err != nil || len(view.Rates) != 4 {
		t.Fatalf("unexpected body %s (%v)", body, err)
	}
	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/pricing", nil)
	req.Header.Set("If-None-Match", etag)
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304, got %d", res2.StatusCode)
	}
}

func TestEstimateAndQuote(t *testing.T) {
	ts := newTestServer(t, &memRepo{})

	res, body := do(t, http.MethodPost, ts.URL+"/v1/estimate", map[string]any{
		"sizeSquareMeters": 100, "bedrooms": 2, "bathrooms": 1, "cleaningPace": "standard",
	})
	var est domain.DurationEstimate
	if res.StatusCode != http.StatusOK || json.Unmarshal(body, &est) != nil || est.Hours != 3.5 {
		t.Fatalf("estimate: %d %s", res.StatusCode, body)
	}

	res, body = do(t, http.MethodPost, ts.URL+"/v1/quote", map[string]any{
		"frequency": "weekly", "hours": 3, "extras": map[string]any{"oven": map[string]any{}},
	})
	var q domain.Quote
	if res.StatusCode != http.StatusOK || json.Unmarshal(body, &q) != nil || q.Total != 108 {
		t.Fatalf("quote: %d %s", res.StatusCode, body)
	}

	res, body = do(t, http.MethodPost, ts.URL+"/v1/quote", map[string]any{"frequency": "daily"})
	if res.StatusCode != http.StatusBadRequest || res.Header.Get("Content-Type") != "application/problem+json" {
		t.Fatalf("bad frequency: %d %s", res.StatusCode, body)
	}
	if !strings.Contains(string(body), `"frequency"`) {
		t.Fatalf("field error missing: %s", body)
	}
}

func TestDraftFlow_HTTP(t *testing.T) {
	repo := &memRepo{}
	ts := newTestServer(t, repo)

	res, body := do(t, http.MethodPost, ts.URL+"/v1/drafts", map[string]any{"serviceType": "regular"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d %s", res.StatusCode, body)
	}
	var d domain.BookingDraft
	_ = json.Unmarshal(body, &d)
	base := ts.URL + "/v1/drafts/" + d.ID

	res, body = do(t, http.MethodPatch, base, map[string]any{"sizeSquareMeters": 200, "bedrooms": 3, "bathrooms": 2})
	_ = json.Unmarshal(body, &d)
	if res.StatusCode != http.StatusOK || !d.Upsell.Visible || d.Hours != 6.5 {
		t.Fatalf("patch: %d %s", res.StatusCode, body)
	}

	res, body = do(t, http.MethodPost, base+"/upsell/dismiss", nil)
	_ = json.Unmarshal(body, &d)
	if res.StatusCode != http.StatusOK || d.Upsell.Visible {
		t.Fatalf("dismiss: %d %s", res.StatusCode, body)
	}

	res, body = do(t, http.MethodPatch, base, map[string]any{"cleaningPace": "turbo", "bedrooms": 2})
	if res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(body), `"cleaningPace"`) {
		t.Fatalf("partial patch: %d %s", res.StatusCode, body)
	}

	res, body = do(t, http.MethodPut, base+"/extras/windows", map[string]any{"units": 5})
	_ = json.Unmarshal(body, &d)
	if res.StatusCode != http.StatusOK || d.Quote.ExtrasTotal != 15 {
		t.Fatalf("put extra: %d %s", res.StatusCode, body)
	}
	if res, _ := do(t, http.MethodPut, base+"/extras/sauna", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown extra: %d", res.StatusCode)
	}

	// ServiceDetails -> PropertyDetails -> Scheduling
	for i := 0; i < 2; i++ {
		if res, body := do(t, http.MethodPost, base+"/next", nil); res.StatusCode != http.StatusOK {
			t.Fatalf("next: %d %s", res.StatusCode, body)
		}
	}
	if res, body := do(t, http.MethodPost, base+"/next", nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("scheduling without date: %d %s", res.StatusCode, body)
	}
	do(t, http.MethodPatch, base, map[string]any{"date": "2026-03-05", "timeSlot": "09:00"})
	if res, body := do(t, http.MethodPost, base+"/next", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("next: %d %s", res.StatusCode, body)
	}
	if res, _ := do(t, http.MethodPost, base+"/next", nil); res.StatusCode != http.StatusConflict {
		t.Fatalf("next from contact info: %d", res.StatusCode)
	}

	do(t, http.MethodPatch, base, map[string]any{
		"name": "Ana", "email": "ana@example.com", "phone": "020 123 4567",
		"address": "Dam 1", "postalCode": "1012JS", "city": "Amsterdam",
	})

	repo.setFail(true)
	if res, body := do(t, http.MethodPost, base+"/submit", nil); res.StatusCode != http.StatusBadGateway {
		t.Fatalf("failing submit: %d %s", res.StatusCode, body)
	}
	repo.setFail(false)

	res, body = do(t, http.MethodPost, base+"/submit", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, body)
	}
	var out struct {
		Draft   domain.BookingDraft  `json:"draft"`
		Booking domain.BookingRecord `json:"booking"`
	}
	_ = json.Unmarshal(body, &out)
	if out.Draft.Step != domain.StepSubmitted || out.Booking.TotalPrice != out.Booking.BasePrice+out.Booking.ExtrasTotal {
		t.Fatalf("unexpected submit body: %s", body)
	}

	if res, _ := do(t, http.MethodPost, base+"/submit", nil); res.StatusCode != http.StatusConflict {
		t.Fatalf("resubmit: %d", res.StatusCode)
	}

	res, body = do(t, http.MethodGet, ts.URL+"/v1/bookings/"+out.Booking.ID, nil)
	if res.StatusCode != http.StatusOK || res.Header.Get("ETag") == "" {
		t.Fatalf("get booking: %d %s", res.StatusCode, body)
	}
	if res, _ := do(t, http.MethodGet, ts.URL+"/v1/bookings/nope", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing booking: %d", res.StatusCode)
	}
}

func TestDraft_NotFoundAndAbandon(t *testing.T) {
	ts := newTestServer(t, &memRepo{})

	if res, _ := do(t, http.MethodGet, ts.URL+"/v1/drafts/missing", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing draft: %d", res.StatusCode)
	}
	if res, _ := do(t, http.MethodPost, ts.URL+"/v1/drafts", map[string]any{"serviceType": "windows"}); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad service type: %d", res.StatusCode)
	}

	_, body := do(t, http.MethodPost, ts.URL+"/v1/drafts", map[string]any{"serviceType": "deep"})
	var d domain.BookingDraft
	_ = json.Unmarshal(body, &d)

	if res, _ := do(t, http.MethodPatch, ts.URL+"/v1/drafts/"+d.ID, map[string]any{"finalPrice": 1}); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", res.StatusCode)
	}
	if res, _ := do(t, http.MethodDelete, ts.URL+"/v1/drafts/"+d.ID, nil); res.StatusCode != http.StatusNoContent {
		t.Fatalf("abandon: %d", res.StatusCode)
	}
	if res, _ := do(t, http.MethodGet, ts.URL+"/v1/drafts/"+d.ID, nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("abandoned draft: %d", res.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &memRepo{})
	res, body := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	if res.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %s", res.StatusCode, body)
	}
}
