package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/triage")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.DefaultSpecialty != "General Medicine" {
		t.Fatalf("expected default specialty, got %s", cfg.DefaultSpecialty)
	}
	if cfg.AvgConsultMinutes != 15 || cfg.TxRetryAttempts != 3 {
		t.Fatalf("unexpected queue defaults: %+v", cfg)
	}
	if !cfg.IsDev() || cfg.IsProduction() {
		t.Fatal("default env should be development")
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/triage")
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("AVG_CONSULT_MINUTES", "20")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production env")
	}
	if cfg.AvgConsultMinutes != 20 {
		t.Fatalf("expected consult minutes 20, got %d", cfg.AvgConsultMinutes)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadRejectsBadQueueSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/triage")
	t.Setenv("AVG_CONSULT_MINUTES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive AVG_CONSULT_MINUTES")
	}
}
