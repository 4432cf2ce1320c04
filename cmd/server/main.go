package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodsign/monday"
	"gopkg.in/natefinch/lumberjack.v2"

	"studyhub-backend/internal/config"
	"studyhub-backend/internal/database"
	"studyhub-backend/internal/handlers"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/repository"
	"studyhub-backend/internal/router"
	"studyhub-backend/internal/services"
	"studyhub-backend/internal/stats"
	"studyhub-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	setupLogOutput(cfg.LogFile)

	log.Println("🚀 Starting StudyHub Backend...")
	log.Println("✓ Environment variables loaded")

	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("✗ %v", err)
	}
	unresolved, err := stats.ParseUnresolvedCoursePolicy(cfg.StatsUnresolvedCourse)
	if err != nil {
		log.Fatalf("✗ %v", err)
	}

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	studySessionRepo := repository.NewStudySessionRepo(pool)
	enrollmentRepo := repository.NewEnrollmentRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	emailService, err := services.NewEmailService(services.EmailConfig{
		Provider:     cfg.EmailProvider,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUser:     cfg.SMTPUser,
		SMTPPass:     cfg.SMTPPass,
		SMTPFrom:     cfg.SMTPFrom,
		SESRegion:    cfg.SESRegion,
		SESFromEmail: cfg.SESFromEmail,
		SESFromName:  cfg.SESFromName,
		FrontendURL:  cfg.FrontendURL,
	})
	if err != nil {
		log.Fatalf("✗ Email service initialization failed: %v", err)
	}

	statsService := services.NewStatsService(
		studySessionRepo,
		enrollmentRepo,
		userRepo,
		services.NewRedisSnapshotCache(redisClients.Cache, cfg.StatsCacheTTL),
		services.NewRedisPublisher(redisClients.Cache),
		services.StatsConfig{
			SessionWindow:     cfg.StatsSessionWindow,
			DefaultWeeklyGoal: cfg.StatsDefaultWeeklyGoal,
			FetchTimeout:      cfg.StatsFetchTimeout,
			MaxAge:            cfg.StatsCacheTTL,
			Location:          location,
			Aggregation: stats.Options{
				Locale:     monday.Locale(cfg.StatsLocale),
				Unresolved: unresolved,
			},
		},
	)
	log.Printf("✓ Stats service ready (window=%d, locale=%s, tz=%s)", cfg.StatsSessionWindow, cfg.StatsLocale, location)

	// ──── Initialize Handlers ────
	statsHandler := handlers.NewStatsHandler(statsService)
	userHandler := handlers.NewUserHandler(userRepo)

	// ──── Step 5: Start Notification Scheduler ────
	notificationScheduler := services.NewNotificationScheduler(userRepo, emailService, statsService)
	notificationScheduler.Start()
	log.Println("✓ Notification scheduler started")

	// ──── Step 6: Start Background Workers ────
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	go wsHub.Run(bgCtx)
	log.Println("✓ WebSocket hub started")

	go statsService.RunEviction(bgCtx, cfg.StatsCacheTTL)

	writeLimiter := middleware.NewRateLimiter(cfg.RateLimitWritesPerMin, time.Minute)
	go writeLimiter.Run(bgCtx)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, statsHandler, userHandler, wsHub, writeLimiter, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		notificationScheduler.Stop()
		stopBackground()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudyHub Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// setupLogOutput mirrors the standard logger into a rotated file when
// LOG_FILE is set.
func setupLogOutput(path string) {
	if path == "" {
		return
	}

	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}))
}
