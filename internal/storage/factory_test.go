package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/config"
)

func TestNewBackendFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name     string
		typ      string
		raw      string
		wantType string
		wantErr  bool
	}{
		{"memory", "memory", `{}`, "memory", false},
		{"local", "local", `{"root_path":"` + dir + `"}`, "local", false},
		{"local without root", "local", `{}`, "", true},
		{"unknown", "ftp", `{}`, "", true},
	}
	for _, tt := range tests {
		b, err := NewBackendFromConfig(ctx, tt.typ, json.RawMessage(tt.raw))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if b.Type() != tt.wantType {
			t.Errorf("%s: Type = %q, want %q", tt.name, b.Type(), tt.wantType)
		}
	}
}

func TestNewContentBackendLocal(t *testing.T) {
	cfg := &config.Config{ContentBackend: "local", LocalStoragePath: t.TempDir()}
	b, err := NewContentBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewContentBackend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := PutBytes(ctx, b, "blobs/a", []byte("hello")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	data, err := ReadAll(ctx, b, "blobs/a")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}

	if _, err := ReadAll(ctx, b, "blobs/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing key error = %v, want fs.ErrNotExist", err)
	}
}
