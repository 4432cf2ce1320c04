package models

import "time"

type RollupStatus string

const (
	RollupOK          RollupStatus = "ok"
	RollupUnsupported RollupStatus = "unsupported" // stored procedure not deployed
	RollupUnavailable RollupStatus = "unavailable" // call failed
)

// StudyStatistics is the precomputed rollup returned by get_study_statistics.
type StudyStatistics struct {
	TotalHours float64 `json:"total_hours"`
}

type MonthlyHours struct {
	Month string  `json:"month"`
	Hours float64 `json:"hours"`
}

type SubjectHours struct {
	Subject    string  `json:"subject"`
	Hours      float64 `json:"hours"`
	Percentage int     `json:"percentage"`
}

// StudyStatsSnapshot is the result of one aggregation pass. It is replaced
// wholesale on every refresh and must not be mutated after publication.
type StudyStatsSnapshot struct {
	TotalHours         float64        `json:"total_hours"`
	WeeklyGoal         float64        `json:"weekly_goal"`
	CurrentStreak      int            `json:"current_streak"`
	AverageSessionTime float64        `json:"average_session_time"`
	WeeklyProgress     [7]float64     `json:"weekly_progress"`
	MonthlyProgress    []MonthlyHours `json:"monthly_progress"`
	SubjectBreakdown   []SubjectHours `json:"subject_breakdown"`
	RollupStatus       RollupStatus   `json:"rollup_status"`
	SessionCount       int            `json:"session_count"`
	GeneratedAt        time.Time      `json:"generated_at"`
}
