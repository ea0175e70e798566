package availability

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// Handler exposes slot lookups to the booking flow and the staff schedule
// writes to the admin panel.
type Handler struct {
	engine *Engine
	repo   *Repository
	logger *logging.Logger
}

// NewHandler creates an availability HTTP handler. repo may be nil when
// staff endpoints are not mounted.
func NewHandler(engine *Engine, repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, repo: repo, logger: logger}
}

// GetSlots handles GET /availability?specialist_id=&date=&duration=&service_id=.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	specialistID := q.Get("specialist_id")
	serviceID := q.Get("service_id")

	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil || duration <= 0 {
		http.Error(w, "invalid duration", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.AvailableSlots(r.Context(), specialistID, date, duration, serviceID)
	if err != nil {
		h.logger.Error("availability lookup failed", "error", err, "specialist_id", specialistID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{"slots": slots})
}

// GetSlotsAllSpecialists handles GET /availability/all?business_id=&date=&duration=&service_id=.
func (h *Handler) GetSlotsAllSpecialists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := q.Get("business_id")
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil || duration <= 0 {
		http.Error(w, "invalid duration", http.StatusBadRequest)
		return
	}

	all, err := h.engine.AvailableSlotsAllSpecialists(r.Context(), businessID, date, q.Get("service_id"), duration)
	if err != nil {
		h.logger.Error("availability fan-out failed", "error", err, "business_id", businessID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{"specialists": all})
}

type workingHoursRequest struct {
	SpecialistID string `json:"specialist_id"`
	Weekday      int    `json:"weekday"`
	IsAvailable  bool   `json:"is_available"`
	OpenTime     string `json:"open_time"`
	CloseTime    string `json:"close_time"`
}

// UpsertWorkingHours handles PUT /admin/working-hours.
func (h *Handler) UpsertWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req workingHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.SpecialistID == "" || req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "specialist_id and weekday 0-6 are required", http.StatusBadRequest)
		return
	}

	err := h.repo.UpsertWorkingHours(r.Context(), WorkingHours{
		SpecialistID: req.SpecialistID,
		Weekday:      time.Weekday(req.Weekday),
		IsAvailable:  req.IsAvailable,
		OpenTime:     req.OpenTime,
		CloseTime:    req.CloseTime,
	})
	if err != nil {
		h.logger.Error("working hours upsert failed", "error", err, "specialist_id", req.SpecialistID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeBlockRequest struct {
	SpecialistID string    `json:"specialist_id"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// CreateTimeBlock handles POST /admin/time-blocks.
func (h *Handler) CreateTimeBlock(w http.ResponseWriter, r *http.Request) {
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.SpecialistID == "" {
		http.Error(w, "specialist_id is required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateTimeBlock(r.Context(), req.SpecialistID, req.StartsAt, req.EndsAt)
	if err != nil {
		h.logger.Error("time block create failed", "error", err, "specialist_id", req.SpecialistID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"id": id})
}

// DeleteTimeBlock handles DELETE /admin/time-blocks/{blockID}.
func (h *Handler) DeleteTimeBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "blockID")
	if id == "" {
		http.Error(w, "block id is required", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeleteTimeBlock(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
