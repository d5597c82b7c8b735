package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/config"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/storage/local"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/storage/memory"
	s3backend "github.com/fruitsalade/fruitsalade/wsagent/internal/storage/s3"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
func NewBackendFromConfig(ctx context.Context, backendType string, raw json.RawMessage) (Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, raw)
	case "local":
		return local.NewFromJSON(raw)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// NewContentBackend creates the content backend selected by CONTENT_BACKEND.
func NewContentBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	var raw []byte
	var err error

	switch cfg.ContentBackend {
	case "s3":
		raw, err = json.Marshal(s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "local":
		raw, err = json.Marshal(local.Config{RootPath: cfg.LocalStoragePath, CreateDirs: true})
	default:
		raw = []byte("{}")
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s backend config: %w", cfg.ContentBackend, err)
	}
	return NewBackendFromConfig(ctx, cfg.ContentBackend, raw)
}
