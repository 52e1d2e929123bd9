package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGENT_NAME", "")
	t.Setenv("PIPECAT_CLOUD_API_KEY", "")
	t.Setenv("ALLOWED_ORIGINS", " ")
	t.Setenv("PIPECAT_API_BASE", DefaultPipecatAPIBase+"/")
	t.Setenv("API_BASE_URL", "/api")
	t.Setenv("CONNECT_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipecat.APIBase != DefaultPipecatAPIBase {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Pipecat.APIBase)
	}
	if cfg.Pipecat.ConnectTimeout != 30*time.Second {
		t.Fatalf("expected fallback connect timeout, got %v", cfg.Pipecat.ConnectTimeout)
	}
	if cfg.Pipecat.ClientAPIBase != "/api" {
		t.Fatalf("unexpected client api base %q", cfg.Pipecat.ClientAPIBase)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.PipecatConfigured() {
		t.Fatal("expected pipecat to be unconfigured without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_NAME", "fool-me-once")
	t.Setenv("PIPECAT_CLOUD_API_KEY", "pk_test")
	t.Setenv("CONNECT_RATE_LIMIT", "3")
	t.Setenv("SESSION_IDLE_TTL", "15m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.PipecatConfigured() {
		t.Fatal("expected pipecat to be configured")
	}
	if cfg.RateLimit.RequestsPerWindow != 3 {
		t.Fatalf("expected rate limit 3, got %d", cfg.RateLimit.RequestsPerWindow)
	}
	if cfg.Session.IdleTTL != 15*time.Minute {
		t.Fatalf("expected idle ttl 15m, got %v", cfg.Session.IdleTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestValidateRejectsBadRateLimit(t *testing.T) {
	t.Setenv("CONNECT_RATE_LIMIT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero rate limit")
	}
}
