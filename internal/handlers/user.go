package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"studyhub-backend/internal/middleware"
)

type userSettingsStore interface {
	GetNotificationsJSON(ctx context.Context, userID uuid.UUID) (json.RawMessage, error)
	SetNotificationSetting(ctx context.Context, userID uuid.UUID, key string, enabled bool) error
}

type UserHandler struct {
	userRepo userSettingsStore
}

func NewUserHandler(userRepo userSettingsStore) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

func defaultNotificationPreferences() map[string]bool {
	return map[string]bool{
		"weekly_digest":   false,
		"study_reminders": false,
	}
}

// mergeNotificationPreferences overlays stored boolean flags on the defaults.
// Unknown keys and non-boolean values are ignored.
func mergeNotificationPreferences(raw json.RawMessage) map[string]bool {
	prefs := defaultNotificationPreferences()
	if len(raw) == 0 {
		return prefs
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return prefs
	}

	for key := range prefs {
		if v, ok := stored[key].(bool); ok {
			prefs[key] = v
		}
	}
	return prefs
}

func (h *UserHandler) GetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	raw, err := h.userRepo.GetNotificationsJSON(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load notification settings", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": mergeNotificationPreferences(raw),
	})
}

func (h *UserHandler) UpdateNotificationSetting(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Key     string `json:"key"`
		Enabled *bool  `json:"enabled"`
	}
	if err := decodeStrictJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if _, known := defaultNotificationPreferences()[req.Key]; !known || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown notification key or missing enabled flag", r))
		return
	}

	if err := h.userRepo.SetNotificationSetting(r.Context(), userID, req.Key, *req.Enabled); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update notification settings", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     req.Key,
		"enabled": *req.Enabled,
	})
}
