package services

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
	"studyhub-backend/internal/repository"
)

const (
	weeklyDigestLastSentKey  = "weekly_digest_last_sent_at"
	studyReminderLastSentKey = "study_reminders_last_sent_at"
	weeklyDigestInterval     = 7 * 24 * time.Hour
	studyReminderInterval    = 72 * time.Hour
	notificationPollInterval = 1 * time.Hour
)

type NotificationUserStore interface {
	ListUsersWithNotificationEnabled(ctx context.Context, notificationKey, lastSentKey string) ([]repository.NotificationRecipient, error)
	GetLatestActivityAt(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	SetNotificationTimestamp(ctx context.Context, userID uuid.UUID, key string, at time.Time) error
}

type NotificationMailer interface {
	SendWeeklyDigestEmail(ctx context.Context, to, fullName string, digest WeeklyDigest) error
	SendStudyReminderEmail(ctx context.Context, to, fullName string, lastActivityAt *time.Time) error
}

type StatsRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) (StatsView, error)
}

type NotificationScheduler struct {
	users    NotificationUserStore
	email    NotificationMailer
	stats    StatsRefresher
	stopChan chan struct{}
}

func NewNotificationScheduler(users NotificationUserStore, email NotificationMailer, stats StatsRefresher) *NotificationScheduler {
	return &NotificationScheduler{
		users:    users,
		email:    email,
		stats:    stats,
		stopChan: make(chan struct{}),
	}
}

func (s *NotificationScheduler) Start() {
	if s.users == nil || s.email == nil {
		return
	}

	if s.stats != nil {
		go s.loop(func(ctx context.Context, now time.Time) {
			s.sendWeeklyDigests(ctx, now)
		})
	}
	go s.loop(func(ctx context.Context, now time.Time) {
		s.sendStudyReminders(ctx, now)
	})

	log.Printf("Notification scheduler started")
}

func (s *NotificationScheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *NotificationScheduler) loop(runFn func(ctx context.Context, now time.Time)) {
	// Run on startup as well as by interval.
	runFn(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(notificationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			runFn(context.Background(), time.Now().UTC())
		}
	}
}

func (s *NotificationScheduler) sendWeeklyDigests(ctx context.Context, now time.Time) {
	recipients, err := s.users.ListUsersWithNotificationEnabled(ctx, "weekly_digest", weeklyDigestLastSentKey)
	if err != nil {
		log.Printf("weekly digest: failed to list recipients: %v", err)
		return
	}

	for _, recipient := range recipients {
		if !shouldSendByLastSent(recipient.LastSentAtRaw, weeklyDigestInterval, now) {
			continue
		}

		view, statsErr := s.stats.Refresh(ctx, recipient.ID)
		if statsErr != nil {
			log.Printf("weekly digest: failed to load stats for user %s: %v", recipient.ID, statsErr)
			continue
		}

		digest := buildWeeklyDigest(view.Stats)
		if digest.HoursThisWeek <= 0 && digest.CurrentStreak == 0 {
			continue
		}

		if err := s.email.SendWeeklyDigestEmail(ctx, recipient.Email, recipient.FullName, digest); err != nil {
			log.Printf("weekly digest: failed to send to %s: %v", recipient.Email, err)
			continue
		}

		if err := s.users.SetNotificationTimestamp(ctx, recipient.ID, weeklyDigestLastSentKey, now); err != nil {
			log.Printf("weekly digest: failed to persist last sent at for user %s: %v", recipient.ID, err)
		}
	}
}

func (s *NotificationScheduler) sendStudyReminders(ctx context.Context, now time.Time) {
	recipients, err := s.users.ListUsersWithNotificationEnabled(ctx, "study_reminders", studyReminderLastSentKey)
	if err != nil {
		log.Printf("study reminders: failed to list recipients: %v", err)
		return
	}

	for _, recipient := range recipients {
		if !shouldSendByLastSent(recipient.LastSentAtRaw, studyReminderInterval, now) {
			continue
		}

		lastActivityAt, activityErr := s.users.GetLatestActivityAt(ctx, recipient.ID)
		if activityErr != nil {
			log.Printf("study reminders: failed to load latest activity for user %s: %v", recipient.ID, activityErr)
			continue
		}

		referenceTime := reminderReferenceTime(lastActivityAt, recipient.CreatedAt)
		if now.Sub(referenceTime) < studyReminderInterval {
			continue
		}

		if err := s.email.SendStudyReminderEmail(ctx, recipient.Email, recipient.FullName, lastActivityAt); err != nil {
			log.Printf("study reminders: failed to send to %s: %v", recipient.Email, err)
			continue
		}

		if err := s.users.SetNotificationTimestamp(ctx, recipient.ID, studyReminderLastSentKey, now); err != nil {
			log.Printf("study reminders: failed to persist last sent at for user %s: %v", recipient.ID, err)
		}
	}
}

// buildWeeklyDigest summarizes the last seven day buckets of a snapshot.
func buildWeeklyDigest(snap models.StudyStatsSnapshot) WeeklyDigest {
	var hours float64
	for _, h := range snap.WeeklyProgress {
		hours += h
	}

	digest := WeeklyDigest{
		HoursThisWeek: math.Round(hours*10) / 10,
		WeeklyGoal:    snap.WeeklyGoal,
		CurrentStreak: snap.CurrentStreak,
	}
	if len(snap.SubjectBreakdown) > 0 {
		digest.TopSubject = snap.SubjectBreakdown[0].Subject
	}
	return digest
}

func shouldSendByLastSent(lastSentRaw string, minInterval time.Duration, now time.Time) bool {
	if lastSentRaw == "" {
		return true
	}

	lastSentAt, err := time.Parse(time.RFC3339, lastSentRaw)
	if err != nil {
		return true
	}

	return now.Sub(lastSentAt) >= minInterval
}

func reminderReferenceTime(lastActivityAt *time.Time, createdAt time.Time) time.Time {
	if lastActivityAt != nil && !lastActivityAt.IsZero() {
		return lastActivityAt.UTC()
	}

	return createdAt.UTC()
}
