package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/http/middleware"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// Handler exposes availability and booking for staff and the practice website.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a scheduling HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterAdminRoutes mounts staff endpoints. Expected under /admin.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/practices/{practiceID}/slots", h.listSlots)
	r.Post("/practices/{practiceID}/appointments", h.bookAs(appointment.SourceManual))
}

// RegisterPublicRoutes mounts website endpoints. Expected under /public.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/practices/{practiceID}/slots", h.listSlots)
	r.Post("/practices/{practiceID}/appointments", h.bookAs(appointment.SourceWebsite))
}

type bookRequest struct {
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason"`
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	practiceID := chi.URLParam(r, "practiceID")
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	duration := 0
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration < 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
			return
		}
	}

	slots, err := h.service.Calculator().ComputeSlots(r.Context(), practiceID, date, duration)
	if err != nil {
		h.writeServiceError(w, practiceID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"practice_id": practiceID,
		"date":        date.Format("2006-01-02"),
		"slots":       slots,
		"count":       len(slots),
	})
}

func (h *Handler) bookAs(source appointment.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID := chi.URLParam(r, "practiceID")
		var body bookRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := h.service.Book(r.Context(), BookingRequest{
			PracticeID:      practiceID,
			PatientName:     body.PatientName,
			PatientPhone:    body.PatientPhone,
			Start:           body.Start,
			DurationMinutes: body.DurationMinutes,
			Reason:          body.Reason,
			Source:          source,
		})
		if err != nil {
			h.writeServiceError(w, practiceID, err)
			return
		}
		if staff, ok := middleware.AdminSubject(r.Context()); ok {
			h.logger.Info("manual booking", "practice_id", practiceID, "appointment_id", result.Appointment.ID, "staff", staff)
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, practiceID string, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPracticeNotFound):
		writeError(w, http.StatusNotFound, "practice not found")
	case errors.Is(err, ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot unavailable")
	case errors.Is(err, ErrConfigurationMissing):
		writeError(w, http.StatusUnprocessableEntity, "practice calendar is not configured")
	default:
		h.logger.Error("scheduling handler failed", "practice_id", practiceID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
