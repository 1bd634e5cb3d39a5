package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/app")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("default port: got %s", cfg.Port)
	}
	if cfg.WorkerPollInterval != 3*time.Second {
		t.Fatalf("poll interval: got %v", cfg.WorkerPollInterval)
	}
	if cfg.WorkerErrorBackoff != 5*time.Second {
		t.Fatalf("error backoff: got %v", cfg.WorkerErrorBackoff)
	}
	if cfg.JobStaleAfter != 10*time.Minute {
		t.Fatalf("stale cutoff: got %v", cfg.JobStaleAfter)
	}
	if cfg.HandoffTTL != 5*time.Minute {
		t.Fatalf("handoff ttl: got %v", cfg.HandoffTTL)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Fatalf("model: got %s", cfg.GeminiModel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/app")
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_POLL_INTERVAL_SECONDS", "1")
	t.Setenv("JOB_STALE_AFTER_SECONDS", "120")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port override: got %s", cfg.Port)
	}
	if cfg.WorkerPollInterval != time.Second {
		t.Fatalf("poll interval override: got %v", cfg.WorkerPollInterval)
	}
	if cfg.JobStaleAfter != 2*time.Minute {
		t.Fatalf("stale cutoff override: got %v", cfg.JobStaleAfter)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error without DATABASE_URL")
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Fatalf("got %d want fallback 7", got)
	}
}
