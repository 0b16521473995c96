package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hookline/hookline/internal/signature"
	"github.com/hookline/hookline/internal/store"
)

// DeliveryIDHeader echoes the generated id on the 202 response.
const DeliveryIDHeader = "X-Hookline-Delivery-Id"

// Router builds the engine's HTTP surface. statusAuth, when non-nil, wraps
// the read-only status/analytics routes; ingestion itself is authenticated
// by the payload signature and stays open.
func Router(svc *Service, maxBodyBytes int64, statusAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/ingest/{subscriptionID}", ingestHandler(svc, maxBodyBytes))
	r.Post("/internal/subscriptions/{subscriptionID}/invalidate", invalidateHandler(svc))

	r.Group(func(r chi.Router) {
		if statusAuth != nil {
			r.Use(statusAuth)
		}
		r.Get("/deliveries/{deliveryID}", statusHandler(svc))
		r.Get("/subscriptions/{subscriptionID}/attempts", attemptsHandler(svc))
		r.Get("/stats", statsHandler(svc))
		r.Get("/activity", activityHandler(svc))
	})

	return r
}

func ingestHandler(svc *Service, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriptionID := chi.URLParam(r, "subscriptionID")

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		deliveryID, err := svc.Ingest(r.Context(), subscriptionID, body, r.Header.Get(signature.Header))
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "subscription not found")
			case errors.Is(err, signature.ErrMismatch):
				writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			case errors.Is(err, signature.ErrMalformed), errors.Is(err, ErrInvalidPayload):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			}
			return
		}

		w.Header().Set(DeliveryIDHeader, deliveryID)
		writeJSON(w, http.StatusAccepted, map[string]string{"delivery_id": deliveryID})
	}
}

func statusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.DeliveryStatus(r.Context(), chi.URLParam(r, "deliveryID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "delivery not found")
				return
			}
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, toStatusResponse(st))
	}
}

func attemptsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 20, 1, 100)
		attempts, err := svc.RecentAttempts(r.Context(), chi.URLParam(r, "subscriptionID"), limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		out := make([]attemptJSON, 0, len(attempts))
		for _, a := range attempts {
			out = append(out, toAttemptJSON(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func statsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func activityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 5, 1, 20)
		items, err := svc.RecentActivity(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		if items == nil {
			items = []store.ActivityItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func invalidateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.InvalidateSubscription(chi.URLParam(r, "subscriptionID"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// Wire shapes. Payload is emitted as raw JSON since ingestion validated it.

type deliveryJSON struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	LastAttemptAt  *string         `json:"last_attempt_at"`
}

type attemptJSON struct {
	ID           int64   `json:"id"`
	DeliveryID   string  `json:"delivery_id"`
	Number       int     `json:"attempt_number"`
	At           string  `json:"timestamp"`
	Outcome      string  `json:"outcome"`
	StatusCode   *int    `json:"status_code"`
	ResponseBody *string `json:"response_body"`
	ErrorMessage *string `json:"error_message"`
}

type statusResponse struct {
	Delivery deliveryJSON  `json:"delivery"`
	Attempts []attemptJSON `json:"attempts"`
}

const timeFormat = "2006-01-02T15:04:05.999999Z07:00"

func toStatusResponse(st DeliveryStatus) statusResponse {
	d := deliveryJSON{
		ID:             st.Delivery.ID,
		SubscriptionID: st.Delivery.SubscriptionID,
		Payload:        json.RawMessage(st.Delivery.Payload),
		Status:         string(st.Delivery.Status),
		CreatedAt:      st.Delivery.CreatedAt.Format(timeFormat),
	}
	if st.Delivery.LastAttemptAt != nil {
		s := st.Delivery.LastAttemptAt.Format(timeFormat)
		d.LastAttemptAt = &s
	}
	attempts := make([]attemptJSON, 0, len(st.Attempts))
	for _, a := range st.Attempts {
		attempts = append(attempts, toAttemptJSON(a))
	}
	return statusResponse{Delivery: d, Attempts: attempts}
}

func toAttemptJSON(a store.Attempt) attemptJSON {
	return attemptJSON{
		ID:           a.ID,
		DeliveryID:   a.DeliveryID,
		Number:       a.Number,
		At:           a.At.Format(timeFormat),
		Outcome:      a.Outcome,
		StatusCode:   a.StatusCode,
		ResponseBody: a.ResponseBody,
		ErrorMessage: a.ErrorMessage,
	}
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
