package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/services"
)

type statsFacade interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (services.StatsView, error)
	Refresh(ctx context.Context, userID uuid.UUID) (services.StatsView, error)
	TrackSession(ctx context.Context, userID uuid.UUID, req models.TrackSessionRequest) (services.StatsView, error)
	UpdateWeeklyGoal(ctx context.Context, userID uuid.UUID, hours float64) (services.StatsView, error)
}

type StatsHandler struct {
	stats statsFacade
}

func NewStatsHandler(stats *services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Get returns the current dashboard statistics. ?refresh=true forces a
// recomputation.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var view services.StatsView
	var err error
	if refresh {
		view, err = h.stats.Refresh(r.Context(), userID)
	} else {
		view, err = h.stats.Snapshot(r.Context(), userID)
	}
	h.writeView(w, r, http.StatusOK, view, err)
}

func (h *StatsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	view, err := h.stats.Refresh(r.Context(), userID)
	h.writeView(w, r, http.StatusOK, view, err)
}

func (h *StatsHandler) SetWeeklyGoal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Hours *float64 `json:"hours"`
	}
	if err := decodeStrictJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Hours == nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{
			"hours": "hours is required",
		}, r))
		return
	}

	view, err := h.stats.UpdateWeeklyGoal(r.Context(), userID, *req.Hours)
	h.writeView(w, r, http.StatusOK, view, err)
}

func (h *StatsHandler) TrackSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.TrackSessionRequest
	if err := decodeStrictJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := h.stats.TrackSession(r.Context(), userID, req)
	h.writeView(w, r, http.StatusCreated, view, err)
}

// writeView renders view with status. A failed refresh still renders the
// view, which carries the last good snapshot and a notice.
func (h *StatsHandler) writeView(w http.ResponseWriter, r *http.Request, status int, view services.StatsView, err error) {
	var fetchErr *services.FetchError
	if err != nil && !errors.As(err, &fetchErr) {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
