package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
)

func TestPutGetCopyDelete(t *testing.T) {
	ctx := context.Background()
	b := New()

	if err := b.PutObject(ctx, "k1", bytes.NewReader([]byte("v1")), 2); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := b.CopyObject(ctx, "k1", "k2"); err != nil {
		t.Fatalf("CopyObject: %v", err)
	}

	rc, size, err := b.GetObject(ctx, "k2")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "v1" || size != 2 {
		t.Errorf("got %q size %d", data, size)
	}

	if err := b.DeleteObject(ctx, "k1"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if ok, _ := b.ObjectExists(ctx, "k1"); ok {
		t.Error("k1 should be gone")
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
	if _, _, err := b.GetObject(ctx, "k1"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if err := b.CopyObject(ctx, "nope", "k3"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("copy of missing key: got %v", err)
	}
}
