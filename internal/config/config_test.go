package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateRequiresDatabaseURLAndAPIKey(t *testing.T) {
	err := Config{}.Validate()
	if !errors.Is(err, ErrMissingDatabaseURL) {
		t.Fatalf("expected missing database url, got %v", err)
	}
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing api key, got %v", err)
	}

	err = Config{DatabaseURL: "postgres://x", APIKey: "k"}.Validate()
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "DATABASE_URL=postgres://from-file\nSECTORBOARD_API_KEY=file-key\nSECTORBOARD_SEARCH_DEBOUNCE_MS=400\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("SECTORBOARD_API_KEY", "process-key")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("SECTORBOARD_SEARCH_DEBOUNCE_MS")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("SECTORBOARD_SEARCH_DEBOUNCE_MS")
	})

	cfg := Load(envFile)
	if cfg.DatabaseURL != "postgres://from-file" {
		t.Fatalf("expected database url from file, got %q", cfg.DatabaseURL)
	}
	if cfg.APIKey != "process-key" {
		t.Fatalf("expected process env to win, got %q", cfg.APIKey)
	}
	if cfg.SearchDebounce != 400*time.Millisecond {
		t.Fatalf("expected 400ms search debounce, got %s", cfg.SearchDebounce)
	}
	if cfg.RealtimeDebounce != 300*time.Millisecond {
		t.Fatalf("expected default realtime debounce, got %s", cfg.RealtimeDebounce)
	}
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SECTORBOARD_TEST_INT", "abc")
	if got := getenvInt("SECTORBOARD_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}
