package stats

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
)

// UnresolvedCoursePolicy decides what happens to sessions whose course has
// no matching enrollment (or no course at all).
type UnresolvedCoursePolicy string

const (
	DropUnresolved   UnresolvedCoursePolicy = "drop"
	BucketUnresolved UnresolvedCoursePolicy = "bucket-as-unknown"

	UncategorizedLabel = "Uncategorized"
)

func ParseUnresolvedCoursePolicy(s string) (UnresolvedCoursePolicy, error) {
	switch p := UnresolvedCoursePolicy(s); p {
	case DropUnresolved, BucketUnresolved:
		return p, nil
	case "":
		return DropUnresolved, nil
	}
	return "", fmt.Errorf("unknown unresolved course policy %q", s)
}

// SubjectBreakdown sums study time per course title and each subject's share
// of the total, sorted by hours descending. With the default policy,
// sessions that cannot be matched to an enrollment are left out entirely.
func SubjectBreakdown(sessions []models.StudySession, enrollments []models.Enrollment, policy UnresolvedCoursePolicy) []models.SubjectHours {
	titles := make(map[uuid.UUID]string, len(enrollments))
	for _, e := range enrollments {
		titles[e.CourseID] = e.CourseTitle
	}

	perSubject := make(map[string]int)
	total := 0
	for i := range sessions {
		s := &sessions[i]

		label, ok := "", false
		if s.CourseID != nil {
			label, ok = titles[*s.CourseID]
		}
		if !ok {
			if policy != BucketUnresolved {
				continue
			}
			label = UncategorizedLabel
		}

		d := durationOf(s)
		perSubject[label] += d
		total += d
	}

	out := make([]models.SubjectHours, 0, len(perSubject))
	if total == 0 {
		return out
	}

	labels := make([]string, 0, len(perSubject))
	for label := range perSubject {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := perSubject[labels[i]], perSubject[labels[j]]
		if a != b {
			return a > b
		}
		return labels[i] < labels[j]
	})

	for _, label := range labels {
		out = append(out, models.SubjectHours{
			Subject:    label,
			Hours:      minutesToHours(perSubject[label]),
			Percentage: percentOf(perSubject[label], total),
		})
	}
	return out
}
