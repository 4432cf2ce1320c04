package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTAuth_Middleware(t *testing.T) {
	userID := uuid.New()
	auth := NewJWTAuth(testSecret)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad signature", "Bearer " + signToken(t, "other", jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"bad user id", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"user_id": "not-a-uuid",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(time.Hour).Unix(),
		}), http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUserID uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			auth.Middleware(next).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantCode == "" {
				if gotUserID != userID {
					t.Fatalf("expected user id %s in context, got %s", userID, gotUserID)
				}
				return
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Error.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, body.Error.Code)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id to be set and echoed, got %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "client-id" || rr.Header().Get("X-Request-ID") != "client-id" {
		t.Fatalf("expected client request id to be kept")
	}
}

func TestCORS(t *testing.T) {
	called := false
	handler := CORS("http://localhost:5173/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight to short-circuit with 204")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected allowed origin header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected foreign origin to pass through without CORS headers")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stats/refresh", nil)
		// Same client, different source ports.
		req.RemoteAddr = fmt.Sprintf("10.0.0.1:%d", 1234+i)
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", last.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	// Steady traffic must not keep extending the window.
	for i, step := range []time.Duration{0, 20 * time.Second, 20 * time.Second, 30 * time.Second} {
		now = now.Add(step)
		ok, _ := limiter.allow("ip:10.0.0.1")
		want := i != 2
		if ok != want {
			t.Fatalf("request %d: expected allowed=%v, got %v", i, want, ok)
		}
	}

	limiter.sweep()
	if len(limiter.windows) != 1 {
		t.Fatalf("expected the live window to survive a sweep, got %d", len(limiter.windows))
	}
	now = now.Add(2 * time.Minute)
	limiter.sweep()
	if len(limiter.windows) != 0 {
		t.Fatalf("expected expired windows to be dropped, got %d", len(limiter.windows))
	}
}

func TestRateLimiter_KeysByUser(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/study-sessions/track", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	alice, bob := uuid.New(), uuid.New()
	if code := send(alice); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(bob); code != http.StatusOK {
		t.Fatalf("expected another user behind the same IP to pass, got %d", code)
	}
	if code := send(alice); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from the same user to be limited, got %d", code)
	}
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"host and port", "192.0.2.7:53211", "ip:192.0.2.7"},
		{"ipv6 with port", "[2001:db8::1]:443", "ip:2001:db8::1"},
		{"bare address from RealIP", "203.0.113.9", "ip:203.0.113.9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if got := rateLimitKey(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
