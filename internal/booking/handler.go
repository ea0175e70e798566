package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/tenancy"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// Handler exposes the customer booking flow and the admin booking actions.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *logging.Logger
}

// NewHandler creates a booking HTTP handler.
func NewHandler(service *Service, repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

type createRequest struct {
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	DurationID    string `json:"duration_id"`
	SpecialistID  string `json:"specialist_id,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	InPerson      bool   `json:"in_person,omitempty"`
}

type createResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountCents   int64  `json:"amount_cents"`
}

// Create handles POST /bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" {
		if businessID, ok := tenancy.BusinessIDFromContext(r.Context()); ok {
			req.BusinessID = businessID
		}
	}

	b, err := h.service.Create(r.Context(), CreateRequest{
		BusinessID:    req.BusinessID,
		ServiceID:     req.ServiceID,
		DurationID:    req.DurationID,
		SpecialistID:  req.SpecialistID,
		Date:          date,
		StartTime:     req.StartTime,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		InPerson:      req.InPerson,
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			http.Error(w, "slot no longer available", http.StatusConflict)
			return
		}
		h.logger.Error("booking create failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createResponse{
		ID:            b.ID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		AmountCents:   b.AmountCents,
	})
}

// Cancel handles POST /bookings/{bookingID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")
	if id == "" {
		http.Error(w, "booking id is required", http.StatusBadRequest)
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /admin/bookings/{bookingID}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")
	if err := h.repo.MarkCompleted(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NoShow handles POST /admin/bookings/{bookingID}/no-show.
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")
	if err := h.repo.MarkNoShow(r.Context(), id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
