// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the workspace agent configuration.
type Config struct {
	// Workspace
	WorkspaceRoot string
	StoreBackend  string // "memory" or "local"

	// Content backend for the memory store ("local", "s3" or "memory")
	ContentBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Project configuration store (optional, folder markers when empty)
	DatabaseURL string

	// Declarative project types (optional)
	ProjectTypesFile string

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFormat   string

	// Import progress throttling
	ImportProgressDelay time.Duration

	// Auth (optional; without it every caller is the system principal)
	JWTSecret string

	// Watch .git directories for index/HEAD changes
	VCSWatch bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		WorkspaceRoot:       envOr("WORKSPACE_ROOT", "/projects"),
		StoreBackend:        envOr("STORE_BACKEND", "local"),
		ContentBackend:      envOr("CONTENT_BACKEND", "memory"),
		LocalStoragePath:    envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:          envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:            envOr("S3_BUCKET", "wsagent"),
		S3AccessKey:         envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:            envOr("S3_REGION", "us-east-1"),
		S3UseSSL:            envBool("S3_USE_SSL", false),
		DatabaseURL:         envOr("DATABASE_URL", ""),
		ProjectTypesFile:    envOr("PROJECT_TYPES_FILE", ""),
		MetricsAddr:         envOr("METRICS_ADDR", ":9090"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		ImportProgressDelay: envDuration("IMPORT_PROGRESS_DELAY", 300*time.Millisecond),
		JWTSecret:           envOr("JWT_SECRET", ""),
		VCSWatch:            envBool("VCS_WATCH", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "local":
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.ContentBackend {
	case "memory", "local", "s3":
	default:
		return fmt.Errorf("unsupported CONTENT_BACKEND %q", c.ContentBackend)
	}
	if c.StoreBackend == "local" && c.WorkspaceRoot == "" {
		return fmt.Errorf("WORKSPACE_ROOT is required for the local store")
	}
	if c.ImportProgressDelay < 0 {
		return fmt.Errorf("IMPORT_PROGRESS_DELAY must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are milliseconds.
	if ms := envInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
