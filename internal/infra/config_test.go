package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SETTINGS_PATH", "API_CREATOR", "DAILY_LIMIT", "PORT", "POLL_MAX_ATTEMPTS", "POLL_INTERVAL_MS", "GENERATION_TIMEOUT_SECONDS", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "10005" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "10005")
	}
	if cfg.Creator != "songapi" || cfg.DailyLimit != 50 {
		t.Fatalf("settings defaults mismatch: creator=%q limit=%d", cfg.Creator, cfg.DailyLimit)
	}
	if cfg.PollMaxAttempts != 120 || cfg.PollInterval != time.Second {
		t.Fatalf("poll budget mismatch: %d x %s", cfg.PollMaxAttempts, cfg.PollInterval)
	}
	if cfg.GenerationTimeout != 0 {
		t.Fatalf("GenerationTimeout should default to none, got %s", cfg.GenerationTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins mismatch: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigSettingsFileWithEnvOverride(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"apiSettings": {"creator": "Maya", "limit": 5}}`), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("DAILY_LIMIT", "9")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Creator != "Maya" {
		t.Fatalf("Creator mismatch: got %q want %q", cfg.Creator, "Maya")
	}
	if cfg.DailyLimit != 9 {
		t.Fatalf("DailyLimit mismatch: got %d want 9", cfg.DailyLimit)
	}
}

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("GENERATION_TIMEOUT_SECONDS", "90")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("PollInterval mismatch: %s", cfg.PollInterval)
	}
	if cfg.GenerationTimeout != 90*time.Second {
		t.Fatalf("GenerationTimeout mismatch: %s", cfg.GenerationTimeout)
	}
	expected := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRejectsInvalidLimits(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DAILY_LIMIT", "-3")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for negative DAILY_LIMIT")
	}

	clearConfigEnv(t)
	t.Setenv("POLL_MAX_ATTEMPTS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero POLL_MAX_ATTEMPTS")
	}
}
