package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

type EnrollmentRepo struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepo(pool *pgxpool.Pool) *EnrollmentRepo {
	return &EnrollmentRepo{pool: pool}
}

func (r *EnrollmentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.user_id, e.course_id, c.title
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := make([]models.Enrollment, 0)
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.CourseTitle); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}

	return enrollments, rows.Err()
}
