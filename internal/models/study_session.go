package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionType string

const (
	SessionLesson  SessionType = "lesson"
	SessionQuiz    SessionType = "quiz"
	SessionReview  SessionType = "review"
	SessionProject SessionType = "project"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionLesson, SessionQuiz, SessionReview, SessionProject:
		return true
	}
	return false
}

type StudySession struct {
	ID              uuid.UUID   `json:"id"`
	UserID          uuid.UUID   `json:"user_id"`
	CourseID        *uuid.UUID  `json:"course_id,omitempty"`
	LessonID        *uuid.UUID  `json:"lesson_id,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"` // nil while planned / not completed
	DurationMinutes int         `json:"duration_minutes"`
	SessionType     SessionType `json:"session_type"`
}

type Enrollment struct {
	UserID      uuid.UUID `json:"user_id"`
	CourseID    uuid.UUID `json:"course_id"`
	CourseTitle string    `json:"course_title"`
}

type TrackSessionRequest struct {
	CourseID        *uuid.UUID  `json:"course_id"`
	LessonID        *uuid.UUID  `json:"lesson_id"`
	DurationMinutes int         `json:"duration_minutes"`
	SessionType     SessionType `json:"session_type"`
}
