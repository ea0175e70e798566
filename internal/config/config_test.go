package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.PayPalBaseURL != "https://api-m.paypal.com" {
		t.Errorf("unexpected paypal base url %s", cfg.PayPalBaseURL)
	}
	if cfg.ProviderAPITimeout != 10*time.Second {
		t.Errorf("expected 10s provider timeout, got %s", cfg.ProviderAPITimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PLATFORM_FEE_BPS", "250")
	t.Setenv("SLOT_LOCK_TTL", "45s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port override 9090, got %s", cfg.Port)
	}
	if cfg.PlatformFeeBps != 250 {
		t.Errorf("expected fee 250 bps, got %d", cfg.PlatformFeeBps)
	}
	if cfg.SlotLockTTL != 45*time.Second {
		t.Errorf("expected 45s slot lock ttl, got %s", cfg.SlotLockTTL)
	}
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("PLATFORM_FEE_BPS", "not-a-number")
	cfg := Load()
	if cfg.PlatformFeeBps != 0 {
		t.Errorf("expected default 0 for bad int, got %d", cfg.PlatformFeeBps)
	}
}
