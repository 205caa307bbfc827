package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.JWTIssuer != "justping" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.AccessTokenTTL != "1h" || cfg.RefreshTokenTTL != "7d" {
		t.Errorf("token TTL defaults = %q / %q", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.EmailQueue != "email.send" {
		t.Errorf("EmailQueue = %q", cfg.EmailQueue)
	}
	if cfg.DBTimeout != 5*time.Second || cfg.ProviderTimeout != 10*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.DBTimeout, cfg.ProviderTimeout)
	}
	if cfg.RateLimitPerSecond != 10 || cfg.RateLimitBurst != 20 {
		t.Errorf("rate limits = %d / %d", cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JUSTPING_ADDR", ":9090")
	t.Setenv("JUSTPING_PG_DSN", "postgres://localhost/justping")
	t.Setenv("JUSTPING_REDIS_ADDR", "localhost:6379")
	t.Setenv("JUSTPING_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("JUSTPING_DB_TIMEOUT", "2s")
	t.Setenv("JUSTPING_RATE_LIMIT_BURST", "50")

	cfg := Load()
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://localhost/justping" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.AccessTokenTTL != "15m" {
		t.Errorf("AccessTokenTTL = %q", cfg.AccessTokenTTL)
	}
	if cfg.DBTimeout != 2*time.Second {
		t.Errorf("DBTimeout = %v", cfg.DBTimeout)
	}
	if cfg.RateLimitBurst != 50 {
		t.Errorf("RateLimitBurst = %d", cfg.RateLimitBurst)
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("JUSTPING_RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("JUSTPING_DB_TIMEOUT", "soon")

	cfg := Load()
	if cfg.RateLimitBurst != 20 {
		t.Errorf("garbage int should fall back, got %d", cfg.RateLimitBurst)
	}
	if cfg.DBTimeout != 5*time.Second {
		t.Errorf("garbage duration should fall back, got %v", cfg.DBTimeout)
	}
}
