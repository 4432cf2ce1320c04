package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

// SQLSTATE undefined_function
const pgUndefinedFunction = "42883"

// ErrRollupUnsupported is returned when get_study_statistics is not deployed.
var ErrRollupUnsupported = errors.New("study statistics rollup is not available on this database")

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

// ListRecent returns the user's latest sessions, newest first.
func (r *StudySessionRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, course_id, lesson_id, started_at, ended_at, duration_minutes, session_type
		FROM study_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.StudySession, 0, limit)
	for rows.Next() {
		var s models.StudySession
		var sessionType string
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.CourseID,
			&s.LessonID,
			&s.StartedAt,
			&s.EndedAt,
			&s.DurationMinutes,
			&sessionType,
		); err != nil {
			return nil, err
		}
		s.SessionType = models.SessionType(sessionType)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Track records a session through the track_study_session procedure.
func (r *StudySessionRepo) Track(ctx context.Context, userID uuid.UUID, req models.TrackSessionRequest) error {
	_, err := r.pool.Exec(ctx, `SELECT track_study_session($1, $2, $3, $4, $5)`,
		userID, req.CourseID, req.LessonID, req.DurationMinutes, string(req.SessionType),
	)
	return err
}

// Statistics calls the get_study_statistics rollup. A database without the
// procedure yields ErrRollupUnsupported; every other failure is returned as is.
func (r *StudySessionRepo) Statistics(ctx context.Context, userID uuid.UUID) (*models.StudyStatistics, error) {
	var stats models.StudyStatistics
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(total_hours, 0)::float8 FROM get_study_statistics($1)
	`, userID).Scan(&stats.TotalHours)
	if err != nil {
		if isUndefinedFunction(err) {
			return nil, ErrRollupUnsupported
		}
		return nil, err
	}
	return &stats, nil
}

func isUndefinedFunction(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedFunction
}
