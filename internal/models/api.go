package models

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatsUpdatedEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	CurrentStreak int       `json:"current_streak"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
