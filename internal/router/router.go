package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studyhub-backend/internal/handlers"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	statsHandler *handlers.StatsHandler,
	userHandler *handlers.UserHandler,
	wsHub *websocket.Hub,
	writeLimiter *middleware.RateLimiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Stats Routes ────
		r.Route("/stats", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", statsHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(writeLimiter.Middleware)
				r.Post("/refresh", statsHandler.Refresh)
				r.Put("/weekly-goal", statsHandler.SetWeeklyGoal)
			})
		})

		// ──── Study Session Routes ────
		r.Route("/study-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(writeLimiter.Middleware)
			r.Post("/track", statsHandler.TrackSession)
		})

		// ──── User & Settings Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/notifications", userHandler.GetNotificationSettings)
			r.Put("/notifications", userHandler.UpdateNotificationSetting)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
