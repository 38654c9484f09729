// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string

	DatabaseURL string
	AMQPURL     string

	HTTPPort        int
	TrackingBaseURL string

	WorkerCount    int
	ClaimBatchSize int
	PollInterval   time.Duration
	SendDelay      time.Duration
	SendTimeout    time.Duration
	DryRun         bool
}

// Load reads configuration from the environment, honoring a .env file when
// present. Only DATABASE_URL is mandatory; AMQP_URL is optional (event
// publishing is skipped without it).
func Load() (*Config, error) {
	// .env is optional, OS environment wins.
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := os.Getenv("DB_USER")
		pass := os.Getenv("DB_PASSWORD")
		host := envOr("DB_HOST", "localhost")
		port := envOr("DB_PORT", "5432")
		name := os.Getenv("DB_NAME")
		if user == "" || name == "" {
			return nil, fmt.Errorf("DATABASE_URL (or DB_USER/DB_NAME) is required")
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
	}

	cfg := &Config{
		Env:             envOr("APP_ENV", "development"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		DatabaseURL:     dsn,
		AMQPURL:         os.Getenv("AMQP_URL"),
		HTTPPort:        envInt("HTTP_PORT", 8080),
		TrackingBaseURL: envOr("TRACKING_BASE_URL", "http://localhost:8080"),
		WorkerCount:     envInt("WORKER_COUNT", 4),
		ClaimBatchSize:  envInt("CLAIM_BATCH_SIZE", 10),
		PollInterval:    envDuration("POLL_INTERVAL", time.Second),
		SendDelay:       envDuration("SEND_DELAY", 100*time.Millisecond),
		SendTimeout:     envDuration("SEND_TIMEOUT", 30*time.Second),
		DryRun:          os.Getenv("SEND_DRY_RUN") == "true",
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
