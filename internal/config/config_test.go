package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("IMPORT_PROGRESS_DELAY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != "local" {
		t.Errorf("StoreBackend = %q, want local", cfg.StoreBackend)
	}
	if cfg.ImportProgressDelay != 300*time.Millisecond {
		t.Errorf("ImportProgressDelay = %v, want 300ms", cfg.ImportProgressDelay)
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Second},
		{"150ms", 150 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"500", 500 * time.Millisecond},
		{"garbage", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DELAY", tt.value)
		if got := envDuration("TEST_DELAY", time.Second); got != tt.want {
			t.Errorf("envDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "ftp")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported store backend")
	}
}
