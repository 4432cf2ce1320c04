package stats

import (
	"sort"
	"time"

	"studyhub-backend/internal/models"
)

// CurrentStreak counts consecutive calendar days with at least one session,
// ending today or yesterday. Days are taken in now's location. Sessions
// scheduled after today do not count.
func CurrentStreak(sessions []models.StudySession, now time.Time) int {
	if len(sessions) == 0 {
		return 0
	}

	loc := now.Location()
	today := civilDay(now)

	seen := make(map[int64]struct{}, len(sessions))
	for i := range sessions {
		d := civilDay(sessions[i].StartedAt.In(loc))
		if d > today {
			continue
		}
		seen[d] = struct{}{}
	}
	if len(seen) == 0 {
		return 0
	}

	days := make([]int64, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })

	if days[0] != today && days[0] != today-1 {
		return 0
	}

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] != 1 {
			break
		}
		streak++
	}
	return streak
}

// civilDay numbers the calendar date of t (in t's own location) as days
// since the Unix epoch, so gaps are counted in dates, not 24h durations.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
