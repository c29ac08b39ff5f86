package config

import (
	"testing"
	"time"
)

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":15000")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TIMER_DURATION", "45m")
	t.Setenv("CHECKIN_RETENTION_SECONDS", "300")

	cfg := Load()
	if cfg.HTTPAddr != ":15000" {
		t.Fatalf("expected HTTP_ADDR override, got %s", cfg.HTTPAddr)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected STORE_BACKEND override, got %s", cfg.StoreBackend)
	}
	if cfg.JWTSecret != "test-secret" {
		t.Fatalf("expected JWT_SECRET override, got %s", cfg.JWTSecret)
	}
	if cfg.TimerDuration != 45*time.Minute {
		t.Fatalf("expected TIMER_DURATION 45m, got %s", cfg.TimerDuration)
	}
	if cfg.CheckinRetention != 5*time.Minute {
		t.Fatalf("expected CHECKIN_RETENTION 5m, got %s", cfg.CheckinRetention)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := Load()
	if cfg.TickInterval != time.Second {
		t.Fatalf("expected 1s tick default, got %s", cfg.TickInterval)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected 60s sweep default, got %s", cfg.SweepInterval)
	}
	if cfg.DeviceIdleLimit != 5*time.Minute {
		t.Fatalf("expected 5m device idle default, got %s", cfg.DeviceIdleLimit)
	}
}
