package bookings

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aoemotors/driveflow/internal/http/middleware"
	"github.com/aoemotors/driveflow/pkg/logging"
)

// Handler exposes booking intake and update over HTTP.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *logging.Logger
}

// NewHandler creates the bookings HTTP handler.
func NewHandler(service *Service, repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		repo:    repo,
		logger:  logger,
	}
}

// Intake handles POST /webhook/testdrive.
func (h *Handler) Intake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode intake payload", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if missing := req.MissingFields(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		h.logger.Error("intake failed", "error", err, "request_id", req.RequestID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to record test drive booking",
		})
		return
	}

	message := "Test drive booked and confirmation email sent."
	if result.Duplicate {
		message = "Booking already exists."
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"message":    message,
		"request_id": result.RequestID,
	})
}

// Update handles POST /bookings/update. The route sits behind admin auth.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode update payload", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RequestID) == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Update(r.Context(), &req); err != nil {
		switch {
		case errors.Is(err, ErrEmptyUpdate):
			http.Error(w, "no updatable fields supplied", http.StatusBadRequest)
		case errors.Is(err, ErrBookingNotFound):
			http.Error(w, "booking not found", http.StatusNotFound)
		default:
			h.logger.Error("update failed", "error", err, "request_id", req.RequestID)
			http.Error(w, "failed to update booking", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("booking updated",
		"request_id", req.RequestID,
		"admin", middleware.AdminSubjectFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
