package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/services"
)

type stubStatsFacade struct {
	view services.StatsView
	err  error

	snapshotCalls int
	refreshCalls  int
	trackedReq    *models.TrackSessionRequest
	goalHours     float64
	userID        uuid.UUID
}

func (s *stubStatsFacade) Snapshot(ctx context.Context, userID uuid.UUID) (services.StatsView, error) {
	s.snapshotCalls++
	s.userID = userID
	return s.view, s.err
}

func (s *stubStatsFacade) Refresh(ctx context.Context, userID uuid.UUID) (services.StatsView, error) {
	s.refreshCalls++
	s.userID = userID
	return s.view, s.err
}

func (s *stubStatsFacade) TrackSession(ctx context.Context, userID uuid.UUID, req models.TrackSessionRequest) (services.StatsView, error) {
	s.trackedReq = &req
	return s.view, s.err
}

func (s *stubStatsFacade) UpdateWeeklyGoal(ctx context.Context, userID uuid.UUID, hours float64) (services.StatsView, error) {
	s.goalHours = hours
	return s.view, s.err
}

func newStatsRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func readyView() services.StatsView {
	return services.StatsView{
		Stats: models.StudyStatsSnapshot{
			TotalHours:       12.5,
			WeeklyGoal:       10,
			CurrentStreak:    4,
			MonthlyProgress:  []models.MonthlyHours{},
			SubjectBreakdown: []models.SubjectHours{},
			RollupStatus:     models.RollupOK,
		},
		State: services.StateReady,
	}
}

func TestStatsHandler_Get(t *testing.T) {
	userID := uuid.New()
	facade := &stubStatsFacade{view: readyView()}
	h := &StatsHandler{stats: facade}

	rr := httptest.NewRecorder()
	h.Get(rr, newStatsRequest(http.MethodGet, "/api/v1/stats", "", userID))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if facade.snapshotCalls != 1 || facade.refreshCalls != 0 {
		t.Fatalf("expected a snapshot read, got %d snapshot %d refresh", facade.snapshotCalls, facade.refreshCalls)
	}
	if facade.userID != userID {
		t.Fatalf("expected user id from context")
	}

	var body services.StatsView
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Stats.CurrentStreak != 4 || body.State != services.StateReady {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatsHandler_GetWithRefresh(t *testing.T) {
	facade := &stubStatsFacade{view: readyView()}
	h := &StatsHandler{stats: facade}

	rr := httptest.NewRecorder()
	h.Get(rr, newStatsRequest(http.MethodGet, "/api/v1/stats?refresh=true", "", uuid.New()))

	if facade.refreshCalls != 1 || facade.snapshotCalls != 0 {
		t.Fatalf("expected a forced refresh, got %d snapshot %d refresh", facade.snapshotCalls, facade.refreshCalls)
	}
}

func TestStatsHandler_FetchErrorStillRendersView(t *testing.T) {
	view := readyView()
	view.State = services.StateError
	view.Notice = "Could not refresh your study statistics. Showing the last known values."
	facade := &stubStatsFacade{view: view, err: &services.FetchError{Err: errors.New("timeout")}}
	h := &StatsHandler{stats: facade}

	rr := httptest.NewRecorder()
	h.Refresh(rr, newStatsRequest(http.MethodPost, "/api/v1/stats/refresh", "", uuid.New()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body services.StatsView
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Notice == "" || body.Stats.TotalHours != 12.5 {
		t.Fatalf("expected stale stats with a notice, got %+v", body)
	}
}

func TestStatsHandler_SetWeeklyGoal(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"valid", `{"hours":12}`, nil, http.StatusOK, ""},
		{"missing hours", `{}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{"hours":"twelve"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"out of range", `{"hours":500}`, &services.ValidationError{Fields: map[string]string{"hours": "too large"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"store failure", `{"hours":8}`, &services.WriteError{Op: "save weekly goal", Err: errors.New("db down")}, http.StatusBadGateway, "WRITE_FAILED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			facade := &stubStatsFacade{view: readyView(), err: tc.err}
			h := &StatsHandler{stats: facade}

			rr := httptest.NewRecorder()
			h.SetWeeklyGoal(rr, newStatsRequest(http.MethodPut, "/api/v1/stats/weekly-goal", tc.body, uuid.New()))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantCode == "" {
				return
			}
			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestStatsHandler_TrackSession(t *testing.T) {
	courseID := uuid.New()
	facade := &stubStatsFacade{view: readyView()}
	h := &StatsHandler{stats: facade}

	body := `{"course_id":"` + courseID.String() + `","duration_minutes":40,"session_type":"quiz"}`
	rr := httptest.NewRecorder()
	h.TrackSession(rr, newStatsRequest(http.MethodPost, "/api/v1/study-sessions/track", body, uuid.New()))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if facade.trackedReq == nil {
		t.Fatalf("expected request to reach the service")
	}
	if *facade.trackedReq.CourseID != courseID || facade.trackedReq.DurationMinutes != 40 || facade.trackedReq.SessionType != models.SessionQuiz {
		t.Fatalf("unexpected request: %+v", facade.trackedReq)
	}
}

func TestStatsHandler_TrackSessionWriteFailure(t *testing.T) {
	facade := &stubStatsFacade{
		view: readyView(),
		err:  &services.WriteError{Op: "track study session", Err: errors.New("procedure failed")},
	}
	h := &StatsHandler{stats: facade}

	rr := httptest.NewRecorder()
	h.TrackSession(rr, newStatsRequest(http.MethodPost, "/api/v1/study-sessions/track", `{"duration_minutes":5,"session_type":"lesson"}`, uuid.New()))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rr.Code)
	}
}
