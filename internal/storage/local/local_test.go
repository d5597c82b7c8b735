package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	root := t.TempDir()
	b, err := New(Config{RootPath: root, CreateDirs: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, root
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, root := newTestBackend(t)

	if err := b.PutObject(ctx, "ab/cd/blob", bytes.NewReader([]byte("content")), 7); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "ab", "cd", "blob")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, size, err := b.GetObject(ctx, "ab/cd/blob")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "content" || size != 7 {
		t.Errorf("got %q (size %d)", data, size)
	}
}

func TestMissingObject(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	if _, _, err := b.GetObject(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("GetObject missing: %v", err)
	}
	if ok, err := b.ObjectExists(ctx, "nope"); ok || err != nil {
		t.Errorf("ObjectExists = %v, %v", ok, err)
	}
	if err := b.DeleteObject(ctx, "nope"); err != nil {
		t.Errorf("DeleteObject of missing key should succeed: %v", err)
	}
}

func TestKeysStayUnderRoot(t *testing.T) {
	ctx := context.Background()
	b, root := newTestBackend(t)

	if err := b.PutObject(ctx, "../../escape", bytes.NewReader([]byte("x")), 1); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape")); err != nil {
		t.Errorf("traversal key should land under root: %v", err)
	}
	if _, _, err := b.GetObject(ctx, ""); err == nil {
		t.Error("empty key should be rejected")
	}
}

func TestCopyObject(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	if err := b.PutObject(ctx, "src", bytes.NewReader([]byte("abc")), 3); err != nil {
		t.Fatal(err)
	}
	if err := b.CopyObject(ctx, "src", "nested/dst"); err != nil {
		t.Fatalf("CopyObject: %v", err)
	}
	if ok, _ := b.ObjectExists(ctx, "src"); !ok {
		t.Error("source should remain after copy")
	}
	if ok, _ := b.ObjectExists(ctx, "nested/dst"); !ok {
		t.Error("destination should exist after copy")
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{RootPath: f}); err == nil {
		t.Error("expected error for non-directory root")
	}
}
