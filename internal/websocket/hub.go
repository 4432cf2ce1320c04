package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	userUpdatesPrefix = "user_updates:"
	sendBufferSize    = 16
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out stats updates published on Redis to the websocket
// connections of the matching user.
type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID]map[*client]struct{}
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]map[*client]struct{}),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
	}
}

// Run relays every user_updates:<id> message until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.redisClient.PSubscribe(ctx, userUpdatesPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, userUpdatesPrefix))
			if err != nil {
				continue
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	userID, err := h.userIDFromToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(userID, c)

	go h.writePump(c)
	go h.readPump(userID, c)
}

func (h *Hub) userIDFromToken(tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, errors.New("missing token")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid token claims")
	}

	userIDStr, _ := claims["user_id"].(string)
	return uuid.Parse(userIDStr)
}

func (h *Hub) register(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}

	log.Printf("WebSocket connected: user %s (total: %d)", userID, len(h.clients[userID]))
}

func (h *Hub) unregister(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}

	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

func (h *Hub) readPump(userID uuid.UUID, c *client) {
	defer h.unregister(userID, c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to c.conn.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			// Slow consumer; it resyncs on the next update.
			log.Printf("WebSocket send buffer full for user %s, dropping message", userID)
		}
	}
}
