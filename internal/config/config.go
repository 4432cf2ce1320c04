package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Study stats
	StatsSessionWindow     int
	StatsDefaultWeeklyGoal float64
	StatsLocale            string
	StatsTimezone          string
	StatsUnresolvedCourse  string
	StatsFetchTimeout      time.Duration
	StatsCacheTTL          time.Duration

	// Rate limiting
	RateLimitWritesPerMin int

	// Email
	EmailProvider string
	SMTPHost      string
	SMTPPort      string
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	SESRegion     string
	SESFromEmail  string
	SESFromName   string

	// Logging
	LogFile string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		Env:           getEnvOrDefault("ENV", "development"),
		DatabaseURL:   mustGetEnv("DATABASE_URL"),
		MigrationsDir: getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:      mustGetEnv("REDIS_URL"),
		JWTSecret:     mustGetEnv("JWT_SECRET"),

		StatsSessionWindow:     getEnvAsIntOrDefault("STATS_SESSION_WINDOW", 50),
		StatsDefaultWeeklyGoal: getEnvAsFloatOrDefault("STATS_DEFAULT_WEEKLY_GOAL", 10),
		StatsLocale:            getEnvOrDefault("STATS_LOCALE", "fr_FR"),
		StatsTimezone:          getEnvOrDefault("STATS_TIMEZONE", "Local"),
		StatsUnresolvedCourse:  getEnvOrDefault("STATS_UNRESOLVED_COURSE", "drop"),
		StatsFetchTimeout:      getEnvAsDurationOrDefault("STATS_FETCH_TIMEOUT", 10*time.Second),
		StatsCacheTTL:          getEnvAsDurationOrDefault("STATS_CACHE_TTL", 15*time.Minute),

		RateLimitWritesPerMin: getEnvAsIntOrDefault("RATE_LIMIT_WRITES_PER_MIN", 30),

		EmailProvider: getEnvOrDefault("EMAIL_PROVIDER", "smtp"),
		SMTPHost:      getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:      getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:      getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:      getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:      getEnvOrDefault("SMTP_FROM", "noreply@studyhub.app"),
		SESRegion:     getEnvOrDefault("SES_REGION", "eu-west-1"),
		SESFromEmail:  getEnvOrDefault("SES_FROM_EMAIL", ""),
		SESFromName:   getEnvOrDefault("SES_FROM_NAME", "StudyHub"),

		LogFile:     getEnvOrDefault("LOG_FILE", ""),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if cfg.RateLimitWritesPerMin <= 0 {
		cfg.RateLimitWritesPerMin = 30
	}

	return cfg
}

// Location resolves StatsTimezone. Streaks and day buckets are computed in it.
func (c *Config) Location() (*time.Location, error) {
	if c.StatsTimezone == "" || c.StatsTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE %q: %w", c.StatsTimezone, err)
	}
	return loc, nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
