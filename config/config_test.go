package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Poll.DefaultTimeLimit != 60 || cfg.Poll.MinTimeLimit != 10 || cfg.Poll.MaxTimeLimit != 300 {
		t.Errorf("unexpected poll bounds %+v", cfg.Poll)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected archive disabled by default, got %q", cfg.Database.URL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("POLL_DEFAULT_TIME_LIMIT_SEC", "45")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/classpulse?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Server.Port)
	}
	if cfg.Poll.DefaultTimeLimit != 45 {
		t.Errorf("DefaultTimeLimit = %d, want 45", cfg.Poll.DefaultTimeLimit)
	}
	if cfg.Database.URL == "" {
		t.Error("expected DATABASE_URL to flow through")
	}
}

func TestGetEnvIntBadValue(t *testing.T) {
	t.Setenv("POLL_MAX_TIME_LIMIT_SEC", "not-a-number")
	cfg, _ := Load()
	if cfg.Poll.MaxTimeLimit != 300 {
		t.Errorf("MaxTimeLimit = %d, want fallback 300", cfg.Poll.MaxTimeLimit)
	}
}
