package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studyhub-backend/internal/models"
	"studyhub-backend/internal/repository"
	"studyhub-backend/internal/stats"
)

const maxWeeklyGoalHours = 168

type SessionStore interface {
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySession, error)
	Track(ctx context.Context, userID uuid.UUID, req models.TrackSessionRequest) error
	Statistics(ctx context.Context, userID uuid.UUID) (*models.StudyStatistics, error)
}

type EnrollmentStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error)
}

type GoalStore interface {
	GetWeeklyGoal(ctx context.Context, userID uuid.UUID) (float64, bool, error)
	SetWeeklyGoal(ctx context.Context, userID uuid.UUID, hours float64) error
}

type SnapshotCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.StudyStatsSnapshot, error)
	Set(ctx context.Context, userID uuid.UUID, snap *models.StudyStatsSnapshot) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type StatsState string

const (
	StateIdle    StatsState = "idle"
	StateLoading StatsState = "loading"
	StateReady   StatsState = "ready"
	StateError   StatsState = "error"
)

type StatsConfig struct {
	SessionWindow     int
	DefaultWeeklyGoal float64
	FetchTimeout      time.Duration
	// MaxAge bounds how long a published snapshot is served without a
	// recompute. A snapshot from an earlier calendar day is always stale.
	MaxAge            time.Duration
	Location          *time.Location
	Aggregation       stats.Options
}

// StatsView is what the dashboard renders: the published snapshot plus the
// refresh state. Notice is set when the last refresh failed and Stats is
// stale or a zeroed default.
type StatsView struct {
	Stats   models.StudyStatsSnapshot `json:"stats"`
	Loading bool                      `json:"loading"`
	State   StatsState                `json:"state"`
	Notice  string                    `json:"notice,omitempty"`
}

type StatsService struct {
	sessions    SessionStore
	enrollments EnrollmentStore
	goals       GoalStore
	cache       SnapshotCache
	publisher   UpdatePublisher
	cfg         StatsConfig
	now         func() time.Time

	mu    sync.Mutex
	users map[uuid.UUID]*userStats
}

func NewStatsService(
	sessions SessionStore,
	enrollments EnrollmentStore,
	goals GoalStore,
	cache SnapshotCache,
	publisher UpdatePublisher,
	cfg StatsConfig,
) *StatsService {
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 50
	}
	if cfg.DefaultWeeklyGoal <= 0 {
		cfg.DefaultWeeklyGoal = 10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &StatsService{
		sessions:    sessions,
		enrollments: enrollments,
		goals:       goals,
		cache:       cache,
		publisher:   publisher,
		cfg:         cfg,
		now:         time.Now,
		users:       make(map[uuid.UUID]*userStats),
	}
}

// userStats is the per-user state machine. Generations are handed out in
// refresh start order; a result is published only if no later generation
// has already been published.
type userStats struct {
	mu          sync.Mutex
	snapshot    *models.StudyStatsSnapshot
	state       StatsState
	lastErr     error
	nextGen     uint64
	snapshotGen uint64
	stateGen    uint64
	inFlight    int

	// lastAccess is guarded by StatsService.mu.
	lastAccess time.Time
}

func (s *StatsService) entry(userID uuid.UUID) *userStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &userStats{state: StateIdle}
		s.users[userID] = u
	}
	u.lastAccess = s.now()
	return u
}

// EvictIdle drops the in-memory state of users with no refresh running
// that have not been read for MaxAge. Their next read goes through the
// shared cache again. It returns the number of users dropped.
func (s *StatsService) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, u := range s.users {
		if now.Sub(u.lastAccess) < s.cfg.MaxAge {
			continue
		}
		u.mu.Lock()
		busy := u.inFlight > 0
		u.mu.Unlock()
		if busy {
			continue
		}
		delete(s.users, userID)
		evicted++
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is cancelled.
func (s *StatsService) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(s.now()); n > 0 {
				log.Printf("stats: evicted %d idle users", n)
			}
		}
	}
}

func (u *userStats) begin() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.nextGen++
	u.inFlight++
	u.state = StateLoading
	return u.nextGen
}

// succeed publishes snap unless a newer generation already did. It reports
// whether snap became the current snapshot.
func (u *userStats) succeed(gen uint64, snap *models.StudyStatsSnapshot) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.inFlight--
	published := false
	if gen > u.snapshotGen {
		u.snapshot = snap
		u.snapshotGen = gen
		published = true
	}
	if gen >= u.stateGen {
		u.stateGen = gen
		u.state = StateReady
		u.lastErr = nil
	}
	u.settleLoading()
	return published
}

func (u *userStats) fail(gen uint64, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.inFlight--
	if gen >= u.stateGen {
		u.stateGen = gen
		u.state = StateError
		u.lastErr = err
	}
	u.settleLoading()
}

// settleLoading keeps state at loading while any refresh is still running
// and the outcome recorded so far is older than the newest request.
func (u *userStats) settleLoading() {
	if u.inFlight > 0 && u.stateGen < u.nextGen {
		u.state = StateLoading
	}
}

// seed installs a snapshot read from the shared cache when no refresh is
// running and it is newer than the one held in memory.
func (u *userStats) seed(snap *models.StudyStatsSnapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.inFlight > 0 {
		return
	}
	if u.snapshot != nil && !snap.GeneratedAt.After(u.snapshot.GeneratedAt) {
		return
	}
	u.snapshot = snap
	u.state = StateReady
	u.lastErr = nil
}

func (u *userStats) view(fallback models.StudyStatsSnapshot) StatsView {
	u.mu.Lock()
	defer u.mu.Unlock()

	v := StatsView{
		Stats:   fallback,
		Loading: u.inFlight > 0,
		State:   u.state,
	}
	if u.snapshot != nil {
		v.Stats = *u.snapshot
	}
	if u.state == StateError && u.lastErr != nil {
		if u.snapshot != nil {
			v.Notice = "Could not refresh your study statistics. Showing the last known values."
		} else {
			v.Notice = "Could not load your study statistics. Please try again later."
		}
	}
	return v
}

// Snapshot returns the published statistics for a user. A fresh snapshot is
// served from memory, then from the shared cache; anything older is
// recomputed.
func (s *StatsService) Snapshot(ctx context.Context, userID uuid.UUID) (StatsView, error) {
	u := s.entry(userID)
	now := s.now()

	u.mu.Lock()
	serve := u.state == StateLoading || s.fresh(u.snapshot, now)
	u.mu.Unlock()
	if serve {
		return u.view(s.defaultSnapshot()), nil
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err != nil {
			log.Printf("stats: cache read failed for user %s: %v", userID, err)
		}
		if s.fresh(cached, now) {
			u.seed(cached)
			return u.view(s.defaultSnapshot()), nil
		}
	}

	return s.Refresh(ctx, userID)
}

// fresh reports whether snap is younger than MaxAge and was generated on
// the same calendar day as now.
func (s *StatsService) fresh(snap *models.StudyStatsSnapshot, now time.Time) bool {
	if snap == nil || snap.GeneratedAt.IsZero() {
		return false
	}
	if now.Sub(snap.GeneratedAt) >= s.cfg.MaxAge {
		return false
	}
	y1, m1, d1 := snap.GeneratedAt.In(s.cfg.Location).Date()
	y2, m2, d2 := now.In(s.cfg.Location).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Refresh recomputes the user's statistics from scratch. It is safe to call
// concurrently; results of a refresh overtaken by a newer one are dropped.
// On FetchError the previously published snapshot is kept.
func (s *StatsService) Refresh(ctx context.Context, userID uuid.UUID) (StatsView, error) {
	u := s.entry(userID)
	gen := u.begin()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	in, err := s.fetch(fetchCtx, userID)
	if err != nil {
		fetchErr := &FetchError{Err: err}
		u.fail(gen, fetchErr)
		log.Printf("stats: refresh failed for user %s: %v", userID, err)
		return u.view(s.defaultSnapshot()), fetchErr
	}

	now := s.now().In(s.cfg.Location)
	snap := stats.Compute(in.sessions, in.enrollments, now, s.cfg.Aggregation)
	snap.TotalHours = in.totalHours
	snap.RollupStatus = in.rollupStatus
	snap.WeeklyGoal = in.weeklyGoal

	if u.succeed(gen, &snap) {
		s.afterPublish(ctx, userID, &snap)
	}
	return u.view(s.defaultSnapshot()), nil
}

// TrackSession records a study session and then refreshes, whether or not
// the write succeeded. The snapshot is never patched locally.
func (s *StatsService) TrackSession(ctx context.Context, userID uuid.UUID, req models.TrackSessionRequest) (StatsView, error) {
	fields := make(map[string]string)
	if !req.SessionType.Valid() {
		fields["session_type"] = "session_type must be lesson, quiz, review, or project"
	}
	if req.DurationMinutes < 0 {
		fields["duration_minutes"] = "duration_minutes must not be negative"
	}
	if len(fields) > 0 {
		return StatsView{}, &ValidationError{Fields: fields}
	}

	writeErr := s.sessions.Track(ctx, userID, req)
	if writeErr == nil {
		s.invalidate(ctx, userID)
	}

	view, refreshErr := s.Refresh(ctx, userID)
	if writeErr != nil {
		return view, &WriteError{Op: "track study session", Err: writeErr}
	}
	return view, refreshErr
}

// UpdateWeeklyGoal persists a new weekly target in hours and refreshes.
func (s *StatsService) UpdateWeeklyGoal(ctx context.Context, userID uuid.UUID, hours float64) (StatsView, error) {
	if math.IsNaN(hours) || hours <= 0 || hours > maxWeeklyGoalHours {
		return StatsView{}, &ValidationError{Fields: map[string]string{
			"hours": fmt.Sprintf("Weekly goal must be between 0 and %d hours", maxWeeklyGoalHours),
		}}
	}

	if err := s.goals.SetWeeklyGoal(ctx, userID, hours); err != nil {
		return s.entry(userID).view(s.defaultSnapshot()), &WriteError{Op: "save weekly goal", Err: err}
	}
	s.invalidate(ctx, userID)

	return s.Refresh(ctx, userID)
}

type fetchResult struct {
	sessions     []models.StudySession
	enrollments  []models.Enrollment
	weeklyGoal   float64
	totalHours   float64
	rollupStatus models.RollupStatus
}

func (s *StatsService) fetch(ctx context.Context, userID uuid.UUID) (*fetchResult, error) {
	res := &fetchResult{weeklyGoal: s.cfg.DefaultWeeklyGoal}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions, err := s.sessions.ListRecent(gctx, userID, s.cfg.SessionWindow)
		if err != nil {
			return fmt.Errorf("failed to load study sessions: %w", err)
		}
		res.sessions = sessions
		return nil
	})
	g.Go(func() error {
		enrollments, err := s.enrollments.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load enrollments: %w", err)
		}
		res.enrollments = enrollments
		return nil
	})
	g.Go(func() error {
		res.totalHours, res.rollupStatus = s.loadRollup(gctx, userID)
		return nil
	})
	g.Go(func() error {
		res.weeklyGoal = s.loadWeeklyGoal(gctx, userID)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *StatsService) loadRollup(ctx context.Context, userID uuid.UUID) (float64, models.RollupStatus) {
	rollup, err := s.sessions.Statistics(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrRollupUnsupported):
		return 0, models.RollupUnsupported
	case err != nil:
		log.Printf("stats: rollup unavailable for user %s: %v", userID, err)
		return 0, models.RollupUnavailable
	case rollup == nil:
		return 0, models.RollupUnsupported
	}
	return rollup.TotalHours, models.RollupOK
}

func (s *StatsService) loadWeeklyGoal(ctx context.Context, userID uuid.UUID) float64 {
	hours, ok, err := s.goals.GetWeeklyGoal(ctx, userID)
	if err != nil {
		log.Printf("stats: failed to load weekly goal for user %s: %v", userID, err)
		return s.cfg.DefaultWeeklyGoal
	}
	if !ok || hours <= 0 {
		return s.cfg.DefaultWeeklyGoal
	}
	return hours
}

func (s *StatsService) afterPublish(ctx context.Context, userID uuid.UUID, snap *models.StudyStatsSnapshot) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, snap); err != nil {
			log.Printf("stats: cache write failed for user %s: %v", userID, err)
		}
	}

	if s.publisher != nil {
		err := s.publisher.PublishUpdate(ctx, userID, models.WSMessage{
			Type: "stats_updated",
			Payload: models.StatsUpdatedEvent{
				UserID:        userID,
				CurrentStreak: snap.CurrentStreak,
				GeneratedAt:   snap.GeneratedAt,
			},
		})
		if err != nil {
			log.Printf("stats: publish failed for user %s: %v", userID, err)
		}
	}
}

func (s *StatsService) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Printf("stats: cache invalidation failed for user %s: %v", userID, err)
	}
}

// defaultSnapshot is shown when nothing could ever be loaded.
func (s *StatsService) defaultSnapshot() models.StudyStatsSnapshot {
	return models.StudyStatsSnapshot{
		WeeklyGoal:       s.cfg.DefaultWeeklyGoal,
		MonthlyProgress:  []models.MonthlyHours{},
		SubjectBreakdown: []models.SubjectHours{},
		RollupStatus:     models.RollupUnavailable,
	}
}
