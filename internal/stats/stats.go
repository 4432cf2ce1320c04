// Package stats derives the student dashboard aggregates (streak, weekly and
// monthly rollups, subject breakdown) from a list of study sessions.
//
// Every function here is pure: "now" is always passed in, inputs are never
// modified, and the output does not depend on the order of the input slice.
package stats

import (
	"time"

	"github.com/goodsign/monday"

	"studyhub-backend/internal/models"
)

type Options struct {
	Locale     monday.Locale
	Unresolved UnresolvedCoursePolicy
}

// Compute runs every aggregator over the same session list and assembles a
// snapshot. Rollup-sourced and user-configured fields (TotalHours,
// WeeklyGoal, RollupStatus) are left for the caller to fill in.
func Compute(sessions []models.StudySession, enrollments []models.Enrollment, now time.Time, opts Options) models.StudyStatsSnapshot {
	return models.StudyStatsSnapshot{
		CurrentStreak:      CurrentStreak(sessions, now),
		AverageSessionTime: AverageSessionMinutes(sessions),
		WeeklyProgress:     WeeklyProgress(sessions, now),
		MonthlyProgress:    MonthlyProgress(sessions, now, opts.Locale),
		SubjectBreakdown:   SubjectBreakdown(sessions, enrollments, opts.Unresolved),
		SessionCount:       len(sessions),
		GeneratedAt:        now,
	}
}

// AverageSessionMinutes is the mean duration of sessions that lasted at
// least a minute. It is not rounded; clients format it.
func AverageSessionMinutes(sessions []models.StudySession) float64 {
	total, count := 0, 0
	for i := range sessions {
		d := durationOf(&sessions[i])
		if d <= 0 {
			continue
		}
		total += d
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// durationOf clamps negative durations from storage to zero.
func durationOf(s *models.StudySession) int {
	if s.DurationMinutes < 0 {
		return 0
	}
	return s.DurationMinutes
}

// minutesToHours converts minutes to hours rounded half-up to one decimal.
// floor(m/6 + 1/2) == floor((m+3)/6) for m >= 0, so no float rounding creeps in.
func minutesToHours(minutes int) float64 {
	if minutes <= 0 {
		return 0
	}
	return float64((minutes+3)/6) / 10
}

// percentOf returns round-half-up(part/total*100).
func percentOf(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}
