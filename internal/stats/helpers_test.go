package stats

import (
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
)

// 15:00 UTC on a Wednesday
var fixedNow = time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)

func sessionAt(t time.Time, minutes int, courseID *uuid.UUID) models.StudySession {
	return models.StudySession{
		ID:              uuid.New(),
		UserID:          uuid.Nil,
		CourseID:        courseID,
		StartedAt:       t,
		DurationMinutes: minutes,
		SessionType:     models.SessionLesson,
	}
}

func daysAgo(n int) time.Time {
	return fixedNow.AddDate(0, 0, -n)
}

func courseRef(id uuid.UUID) *uuid.UUID {
	return &id
}

func reversed(in []models.StudySession) []models.StudySession {
	out := make([]models.StudySession, len(in))
	for i := range in {
		out[len(in)-1-i] = in[i]
	}
	return out
}
