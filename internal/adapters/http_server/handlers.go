package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cleaning_booking/internal/adapters/observability"
	"cleaning_booking/internal/app"
	"cleaning_booking/internal/domain"
)

const maxBody = 64 << 10

type Handlers struct {
	Q *app.QuoteService
	B *app.BookingService
}

type problem struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/pricing", h.getPricing)
		r.Post("/estimate", h.postEstimate)
		r.Post("/quote", h.postQuote)

		r.Post("/drafts", h.startDraft)
		r.Route("/drafts/{id}", func(r chi.Router) {
			r.Get("/", h.getDraft)
			r.Patch("/", h.patchDraft)
			r.Delete("/", h.abandonDraft)
			r.Put("/extras/{extraId}", h.putExtra)
			r.Delete("/extras/{extraId}", h.deleteExtra)
			r.Post("/next", h.next)
			r.Post("/back", h.back)
			r.Post("/upsell/dismiss", h.dismissUpsell)
			r.Post("/upsell/accept", h.acceptUpsell)
			r.Post("/submit", h.submit)
		})

		r.Get("/bookings/{id}", h.getBooking)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemFields(w, status, title, detail, nil)
}

func writeProblemFields(w http.ResponseWriter, status int, title, detail string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Errors: fields}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblemFields(w, http.StatusBadRequest, "Validation Failed", "one or more fields are invalid", verr.Fields)
	case errors.Is(err, domain.ErrUnknownField):
		writeProblem(w, http.StatusBadRequest, "Unknown Field", err.Error())
	case errors.Is(err, domain.ErrUnknownExtra):
		writeProblem(w, http.StatusNotFound, "Unknown Extra", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrAlreadySubmitted):
		writeProblem(w, http.StatusConflict, "Already Submitted", "this booking was already submitted")
	case errors.Is(err, domain.ErrSubmitInFlight):
		writeProblem(w, http.StatusConflict, "Submission In Progress", "a submission for this draft is in progress")
	case errors.Is(err, domain.ErrDraftBusy):
		writeProblem(w, http.StatusConflict, "Draft Busy", "another change to this draft is being saved, please retry")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, domain.ErrSubmitFailed):
		writeProblem(w, http.StatusBadGateway, "Submission Failed", "We could not save your booking. Please try again.")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeCacheable answers with an ETag and honors If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

// decode reads a JSON body. An empty body leaves dst untouched when optional is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	return true
}

func (h *Handlers) getPricing(w http.ResponseWriter, r *http.Request) {
	writeCacheable(w, r, h.Q.Pricing())
}

func (h *Handlers) postEstimate(w http.ResponseWriter, r *http.Request) {
	var p domain.PropertyProfile
	if !decode(w, r, &p, false) {
		return
	}
	writeJSON(w, http.StatusOK, h.Q.Estimate(p))
}

type quoteRequest struct {
	Frequency domain.FrequencyTier             `json:"frequency"`
	Hours     float64                          `json:"hours"`
	Extras    map[string]domain.ExtraSelection `json:"extras"`
}

func (h *Handlers) postQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req, false) {
		return
	}
	q, err := h.Q.Quote(req.Frequency, req.Hours, req.Extras)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.ObserveQuote(string(q.Frequency))
	writeJSON(w, http.StatusOK, q)
}

type startRequest struct {
	ServiceType domain.ServiceType `json:"serviceType"`
}

func (h *Handlers) startDraft(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req, false) {
		return
	}
	d, err := h.B.StartDraft(r.Context(), req.ServiceType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/drafts/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) getDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.GetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// draftResponse carries the draft alongside field errors so the form can render both.
type draftResponse struct {
	domain.BookingDraft
	Errors map[string]string `json:"errors,omitempty"`
}

func (h *Handlers) patchDraft(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decode(w, r, &fields, false) {
		return
	}
	d, err := h.B.UpdateFields(r.Context(), chi.URLParam(r, "id"), fields)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		// the valid fields were applied; report the rest
		writeJSON(w, http.StatusUnprocessableEntity, draftResponse{BookingDraft: d, Errors: verr.Fields})
		return
	}
	h.draftResult(w, r, d, err)
}

func (h *Handlers) abandonDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.B.Abandon(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) putExtra(w http.ResponseWriter, r *http.Request) {
	var sel domain.ExtraSelection
	if !decode(w, r, &sel, true) {
		return
	}
	d, err := h.B.SelectExtra(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "extraId"), sel)
	h.draftResult(w, r, d, err)
}

func (h *Handlers) deleteExtra(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.DeselectExtra(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "extraId"))
	h.draftResult(w, r, d, err)
}

func (h *Handlers) next(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.Next(r.Context(), chi.URLParam(r, "id"))
	h.draftResult(w, r, d, err)
}

func (h *Handlers) back(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.Back(r.Context(), chi.URLParam(r, "id"))
	h.draftResult(w, r, d, err)
}

func (h *Handlers) dismissUpsell(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.DismissUpsell(r.Context(), chi.URLParam(r, "id"))
	h.draftResult(w, r, d, err)
}

func (h *Handlers) acceptUpsell(w http.ResponseWriter, r *http.Request) {
	d, err := h.B.AcceptUpsell(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/drafts/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

type submitResponse struct {
	Draft   domain.BookingDraft  `json:"draft"`
	Booking domain.BookingRecord `json:"booking"`
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	d, rec, err := h.B.Submit(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		observability.ObserveSubmission("ok")
		writeJSON(w, http.StatusCreated, submitResponse{Draft: d, Booking: rec})
		return
	case errors.Is(err, domain.ErrValidation):
		observability.ObserveSubmission("invalid")
	case errors.Is(err, domain.ErrSubmitInFlight), errors.Is(err, domain.ErrDraftBusy):
		observability.ObserveSubmission("in_flight")
	case errors.Is(err, domain.ErrSubmitFailed):
		observability.ObserveSubmission("failed")
	default:
		observability.ObserveSubmission("rejected")
	}
	writeError(w, r, err)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.B.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, b)
}

func (h *Handlers) draftResult(w http.ResponseWriter, r *http.Request, d domain.BookingDraft, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
