package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testSecret = "hub-secret"

func signUserToken(t *testing.T, secret string, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestHub_UserIDFromToken(t *testing.T) {
	hub := NewHub(nil, testSecret)
	userID := uuid.New()

	got, err := hub.userIDFromToken(signUserToken(t, testSecret, userID.String()))
	if err != nil || got != userID {
		t.Fatalf("expected %s, got %s (err %v)", userID, got, err)
	}

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signUserToken(t, "other-secret", userID.String()),
		"bad user id":  signUserToken(t, testSecret, "nope"),
	} {
		if _, err := hub.userIDFromToken(token); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestHub_RejectsUnauthenticatedUpgrade(t *testing.T) {
	hub := NewHub(nil, testSecret)

	rr := httptest.NewRecorder()
	hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestHub_BroadcastReachesUserConnections(t *testing.T) {
	hub := NewHub(nil, testSecret)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	userID := uuid.New()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + signUserToken(t, testSecret, userID.String())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.connectionCount(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Another user's update must not be delivered.
	hub.broadcast(uuid.New(), []byte(`{"type":"stats_updated","payload":"other"}`))
	hub.broadcast(userID, []byte(`{"type":"stats_updated","payload":"mine"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), `"mine"`) {
		t.Fatalf("unexpected message: %s", data)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.connectionCount(userID) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection was never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *Hub) connectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
