package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	MigrationsPath string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	WorkerPollInterval  time.Duration
	WorkerErrorBackoff  time.Duration
	WorkerRetryBase     time.Duration
	JobStaleAfter       time.Duration
	ProviderCallTimeout time.Duration

	HandoffTTL time.Duration

	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MigrationsPath:      getEnv("MIGRATIONS_PATH", "migrations"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		WorkerPollInterval:  time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 3)),
		WorkerErrorBackoff:  time.Second * time.Duration(getEnvInt("WORKER_ERROR_BACKOFF_SECONDS", 5)),
		WorkerRetryBase:     time.Second * time.Duration(getEnvInt("WORKER_RETRY_BASE_SECONDS", 1)),
		JobStaleAfter:       time.Second * time.Duration(getEnvInt("JOB_STALE_AFTER_SECONDS", 600)),
		ProviderCallTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_CALL_TIMEOUT_SECONDS", 60)),
		HandoffTTL:          time.Second * time.Duration(getEnvInt("AUTH_HANDOFF_TTL_SECONDS", 300)),
		CORSAllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
