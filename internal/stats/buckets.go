package stats

import (
	"sort"
	"time"

	"github.com/goodsign/monday"

	"studyhub-backend/internal/models"
)

const (
	day           = 24 * time.Hour
	weekDays      = 7
	trailingMonth = 6
	monthLayout   = "Jan 2006"
)

// WeeklyProgress buckets the last 7 days of study into hours per day,
// oldest first: index 6 is the 24 hours ending at now.
func WeeklyProgress(sessions []models.StudySession, now time.Time) [weekDays]float64 {
	var minutes [weekDays]int
	for i := range sessions {
		age := now.Sub(sessions[i].StartedAt)
		if age < 0 || age >= weekDays*day {
			continue
		}
		idx := int(age / day)
		if idx > weekDays-1 {
			idx = weekDays - 1
		}
		minutes[idx] += durationOf(&sessions[i])
	}

	var out [weekDays]float64
	for idx, m := range minutes {
		out[weekDays-1-idx] = minutesToHours(m)
	}
	return out
}

type monthKey struct {
	year  int
	month time.Month
}

func (k monthKey) before(o monthKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

// MonthlyProgress sums hours per calendar month over the six months ending
// with now's month. Months without any session are omitted; the rest are
// returned in chronological order with a localized "month year" label.
func MonthlyProgress(sessions []models.StudySession, now time.Time, locale monday.Locale) []models.MonthlyHours {
	loc := now.Location()
	windowStart := time.Date(now.Year(), now.Month()-(trailingMonth-1), 1, 0, 0, 0, 0, loc)

	buckets := make(map[monthKey]int)
	for i := range sessions {
		t := sessions[i].StartedAt.In(loc)
		if t.Before(windowStart) || t.After(now) {
			continue
		}
		k := monthKey{year: t.Year(), month: t.Month()}
		buckets[k] += durationOf(&sessions[i])
	}

	keys := make([]monthKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })

	out := make([]models.MonthlyHours, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.MonthlyHours{
			Month: monthLabel(k, loc, locale),
			Hours: minutesToHours(buckets[k]),
		})
	}
	return out
}

func monthLabel(k monthKey, loc *time.Location, locale monday.Locale) string {
	first := time.Date(k.year, k.month, 1, 0, 0, 0, 0, loc)
	if locale == "" {
		return first.Format(monthLayout)
	}
	return monday.Format(first, monthLayout, locale)
}
