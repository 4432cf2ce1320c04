package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

type NotificationRecipient struct {
	ID            uuid.UUID
	Email         string
	FullName      string
	CreatedAt     time.Time
	LastSentAtRaw string
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetWeeklyGoal returns the stored weekly study target in hours. ok is false
// when the user never set one.
func (r *UserRepo) GetWeeklyGoal(ctx context.Context, userID uuid.UUID) (hours float64, ok bool, err error) {
	var goal pgtype.Float8
	err = r.pool.QueryRow(ctx, `
		SELECT (
			SELECT (preferences_json->>'weekly_goal_hours')::float8
			FROM user_settings
			WHERE user_id = $1
		)
	`, userID).Scan(&goal)
	if err != nil {
		return 0, false, err
	}
	if !goal.Valid {
		return 0, false, nil
	}
	return goal.Float64, true, nil
}

func (r *UserRepo) SetWeeklyGoal(ctx context.Context, userID uuid.UUID, hours float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, preferences_json, updated_at)
		VALUES (
			$1,
			jsonb_build_object('weekly_goal_hours', to_jsonb($2::float8)),
			NOW()
		)
		ON CONFLICT (user_id) DO UPDATE
		SET preferences_json = user_settings.preferences_json ||
			jsonb_build_object('weekly_goal_hours', to_jsonb($2::float8)),
			updated_at = NOW()
	`, userID, hours)
	return err
}

func (r *UserRepo) GetNotificationsJSON(ctx context.Context, userID uuid.UUID) (json.RawMessage, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT notifications_json FROM user_settings WHERE user_id = $1), '{}'::jsonb)
	`, userID).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (r *UserRepo) SetNotificationSetting(ctx context.Context, userID uuid.UUID, key string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, notifications_json, updated_at)
		VALUES (
			$1,
			jsonb_build_object($2::text, to_jsonb($3::boolean)),
			NOW()
		)
		ON CONFLICT (user_id) DO UPDATE
		SET notifications_json = COALESCE(user_settings.notifications_json, '{}'::jsonb) ||
			jsonb_build_object($2::text, to_jsonb($3::boolean)),
			updated_at = NOW()
	`, userID, key, enabled)
	return err
}

func (r *UserRepo) SetNotificationTimestamp(ctx context.Context, userID uuid.UUID, key string, at time.Time) error {
	formatted := at.UTC().Format(time.RFC3339)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, notifications_json, updated_at)
		VALUES (
			$1,
			jsonb_build_object($2::text, to_jsonb($3::text)),
			NOW()
		)
		ON CONFLICT (user_id) DO UPDATE
		SET notifications_json = COALESCE(user_settings.notifications_json, '{}'::jsonb) ||
			jsonb_build_object($2::text, to_jsonb($3::text)),
			updated_at = NOW()
	`, userID, key, formatted)
	return err
}

func (r *UserRepo) ListUsersWithNotificationEnabled(ctx context.Context, notificationKey, lastSentKey string) ([]NotificationRecipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			u.id,
			u.email,
			u.full_name,
			u.created_at,
			COALESCE(us.notifications_json->>$2, '') AS last_sent_at
		FROM users u
		LEFT JOIN user_settings us ON us.user_id = u.id
		WHERE u.is_active = TRUE
		  AND u.is_verified = TRUE
		  AND COALESCE((
			CASE
				WHEN LOWER(COALESCE(us.notifications_json->>$1, '')) IN ('true', 'false')
				THEN (us.notifications_json->>$1)::boolean
				ELSE false
			END
		  ), false) = TRUE
	`, notificationKey, lastSentKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := make([]NotificationRecipient, 0)
	for rows.Next() {
		var recipient NotificationRecipient
		if scanErr := rows.Scan(
			&recipient.ID,
			&recipient.Email,
			&recipient.FullName,
			&recipient.CreatedAt,
			&recipient.LastSentAtRaw,
		); scanErr != nil {
			return nil, scanErr
		}
		recipients = append(recipients, recipient)
	}

	return recipients, rows.Err()
}

// GetLatestActivityAt returns the start of the user's most recent past
// session, or nil when there is none.
func (r *UserRepo) GetLatestActivityAt(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var ts pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(started_at) FROM study_sessions
		WHERE user_id = $1 AND started_at <= NOW()
	`, userID).Scan(&ts)
	if err != nil {
		return nil, err
	}

	if !ts.Valid {
		return nil, nil
	}

	t := ts.Time
	return &t, nil
}
