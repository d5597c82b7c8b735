package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

func TestLocalFileSystemOperations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys, d, err := NewFileSystem(dir)
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	root, err := fsys.Root(ctx)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	src, err := root.CreateFolder(ctx, "proj/src")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	f, err := src.CreateFile(ctx, "Main.java", []byte("class Main {}"))
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if f.MediaType() != "text/x-java" {
		t.Errorf("MediaType = %q", f.MediaType())
	}
	if _, err := os.Stat(filepath.Join(dir, "proj", "src", "Main.java")); err != nil {
		t.Fatalf("file not on disk: %v", err)
	}

	if err := f.SetMediaType(ctx, "text/custom"); err != nil {
		t.Fatalf("SetMediaType: %v", err)
	}
	proj, _ := root.Child(ctx, "proj")
	renamed, err := proj.Rename(ctx, "app")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	moved, err := renamed.Child(ctx, "src/Main.java")
	if err != nil || moved == nil {
		t.Fatalf("child after rename: %v, %v", moved, err)
	}
	if moved.MediaType() != "text/custom" {
		t.Errorf("media type override lost on rename: %q", moved.MediaType())
	}

	// A path through a file resolves to nothing.
	if c, err := renamed.Child(ctx, "src/Main.java/x"); c != nil || err != nil {
		t.Errorf("Child through file = %v, %v", c, err)
	}

	if _, err := renamed.CopyTo(ctx, root, "app"); !apperr.IsConflict(err) {
		t.Errorf("copy onto itself: %v", err)
	}
	cp, err := renamed.CopyTo(ctx, root, "app2")
	if err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	data, err := mustChild(t, cp, "src/Main.java").ContentBytes(ctx)
	if err != nil || string(data) != "class Main {}" {
		t.Errorf("copied content = %q, %v", data, err)
	}

	if p, ok := d.VFSPath(filepath.Join(dir, "app", "src")); !ok || p != "/app/src" {
		t.Errorf("VFSPath = %q, %v", p, ok)
	}
	if _, ok := d.VFSPath(filepath.Dir(dir)); ok {
		t.Error("VFSPath outside root should fail")
	}

	if err := renamed.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := renamed.Delete(ctx); err != nil {
		t.Errorf("second Delete should succeed: %v", err)
	}
}

func mustChild(t *testing.T, f *vfs.File, rel string) *vfs.File {
	t.Helper()
	c, err := f.Child(context.Background(), rel)
	if err != nil || c == nil {
		t.Fatalf("child %s: %v", rel, err)
	}
	return c
}
