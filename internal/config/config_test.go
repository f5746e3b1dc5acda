package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SESSION_IDLE_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend, got %s", cfg.StoreBackend)
	}
	if cfg.FreeQuota != 3 {
		t.Fatalf("expected free quota 3, got %d", cfg.FreeQuota)
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		t.Fatalf("expected dev secrets to be filled in")
	}
	if cfg.SessionIdleTTL != 30*time.Minute {
		t.Fatalf("expected 30m session idle ttl, got %s", cfg.SessionIdleTTL)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "REDIS")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FREE_QUOTA", "5")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("SESSION_IDLE_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendRedis || cfg.FreeQuota != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s shutdown, got %s", cfg.ShutdownPeriod)
	}
	if cfg.IdempotencyTTL != 90*time.Minute {
		t.Fatalf("expected 90m idempotency ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.SessionIdleTTL != 5*time.Minute {
		t.Fatalf("expected 5m session idle ttl, got %s", cfg.SessionIdleTTL)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"redis without url":    {"STORE_BACKEND": "redis", "REDIS_URL": ""},
		"postgres without url": {"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"unknown backend":      {"STORE_BACKEND": "etcd"},
		"bad quota":            {"FREE_QUOTA": "three"},
		"zero idle ttl":        {"SESSION_IDLE_TTL": "0s"},
		"production secrets":   {"APP_ENV": "production", "JWT_SECRET": "", "REFRESH_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv("STORE_BACKEND", "memory")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
