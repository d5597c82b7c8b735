package entry

import (
	"context"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	storagememory "github.com/fruitsalade/fruitsalade/wsagent/internal/storage/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/memory"
)

func newWorkspace(t *testing.T) *FolderEntry {
	t.Helper()
	fsys := memory.NewFileSystem(storagememory.New(), memory.Options{})
	root, err := Root(context.Background(), fsys)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	return root
}

func TestGetChildTypes(t *testing.T) {
	ctx := context.Background()
	root := newWorkspace(t)

	src, err := root.CreateFolder(ctx, "p/src")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.CreateFile(ctx, "Main.java", []byte("class Main {}")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		rel        string
		wantNil    bool
		wantFolder bool
	}{
		{"p", false, true},
		{"p/src", false, true},
		{"p/src/Main.java", false, false},
		{"p/missing", true, false},
		{"p/src/Main.java/x", true, false},
	}
	for _, tt := range tests {
		got, err := root.GetChild(ctx, tt.rel)
		if err != nil {
			t.Fatalf("GetChild(%s): %v", tt.rel, err)
		}
		if tt.wantNil {
			if got != nil {
				t.Errorf("GetChild(%s) = %s, want nil", tt.rel, got.Path())
			}
			continue
		}
		if got == nil {
			t.Fatalf("GetChild(%s) = nil", tt.rel)
		}
		if got.IsFolder() != tt.wantFolder {
			t.Errorf("GetChild(%s).IsFolder = %v", tt.rel, got.IsFolder())
		}
		if _, isFolder := got.(*FolderEntry); isFolder != tt.wantFolder {
			t.Errorf("GetChild(%s) has type %T", tt.rel, got)
		}
	}

	parent, err := src.Parent(ctx)
	if err != nil || parent == nil || parent.Path() != "/p" {
		t.Errorf("Parent = %v, %v", parent, err)
	}
	if rp, _ := root.Parent(ctx); rp != nil {
		t.Error("root has no parent")
	}
}

func TestMoveOverwritePolicy(t *testing.T) {
	ctx := context.Background()
	root := newWorkspace(t)

	a, _ := root.CreateFile(ctx, "a.txt", []byte("source"))
	dst, _ := root.CreateFolder(ctx, "dst")
	if _, err := dst.CreateFile(ctx, "a.txt", []byte("stale")); err != nil {
		t.Fatal(err)
	}

	if _, err := a.MoveTo(ctx, "/dst", "", false); !apperr.IsConflict(err) {
		t.Fatalf("move without overwrite: %v", err)
	}
	moved, err := a.MoveTo(ctx, "/dst", "", true)
	if err != nil {
		t.Fatalf("move with overwrite: %v", err)
	}
	data, _ := moved.ContentAsBytes(ctx)
	if string(data) != "source" {
		t.Errorf("destination content = %q, want source", data)
	}
	if gone, _ := root.GetChild(ctx, "a.txt"); gone != nil {
		t.Error("source still present after move")
	}

	if _, err := moved.MoveTo(ctx, "/nowhere", "", false); !apperr.IsNotFound(err) {
		t.Errorf("move to missing parent: %v", err)
	}

	// Replacing an ancestor of the source would destroy the source.
	c, err := root.CreateFolder(ctx, "a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateFile(ctx, "keep.txt", []byte("keep")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.MoveTo(ctx, "/a", "b", true); !apperr.IsConflict(err) {
		t.Fatalf("move over own ancestor: %v", err)
	}
	if kept, _ := root.GetChildFile(ctx, "a/b/c/keep.txt"); kept == nil {
		t.Error("source subtree lost after rejected move")
	}
}

func TestCopyOverwritePolicy(t *testing.T) {
	ctx := context.Background()
	root := newWorkspace(t)

	src, _ := root.CreateFolder(ctx, "src")
	if _, err := src.CreateFile(ctx, "f", []byte("new")); err != nil {
		t.Fatal(err)
	}
	stale, _ := root.CreateFolder(ctx, "dst/src")
	if _, err := stale.CreateFile(ctx, "old", []byte("old")); err != nil {
		t.Fatal(err)
	}

	if _, err := src.CopyTo(ctx, "/dst", "", false); !apperr.IsConflict(err) {
		t.Fatalf("copy without overwrite: %v", err)
	}
	cp, err := src.CopyTo(ctx, "/dst", "", true)
	if err != nil {
		t.Fatalf("copy with overwrite: %v", err)
	}
	if old, _ := cp.GetChild(ctx, "old"); old != nil {
		t.Error("stale destination subtree was not replaced")
	}
	f, _ := cp.GetChildFile(ctx, "f")
	if f == nil {
		t.Fatal("copied file missing")
	}
	if still, _ := root.GetChild(ctx, "src/f"); still == nil {
		t.Error("copy removed the source")
	}

	nested, err := root.CreateFolder(ctx, "a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := nested.CreateFile(ctx, "keep.txt", []byte("keep")); err != nil {
		t.Fatal(err)
	}
	if _, err := nested.CopyTo(ctx, "/a", "b", true); !apperr.IsConflict(err) {
		t.Fatalf("copy over own ancestor: %v", err)
	}
	if kept, _ := root.GetChildFile(ctx, "a/b/c/keep.txt"); kept == nil {
		t.Error("source subtree lost after rejected copy")
	}
}

func TestRenameKeepsContentAndMediaType(t *testing.T) {
	ctx := context.Background()
	root := newWorkspace(t)

	f, _ := root.CreateFile(ctx, "doc", []byte("body"))
	if err := f.SetMediaType(ctx, "text/x-doc"); err != nil {
		t.Fatal(err)
	}
	r, err := f.Rename(ctx, "doc2")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := r.ContentAsBytes(ctx)
	if string(data) != "body" || r.MediaType() != "text/x-doc" {
		t.Errorf("after rename: %q %q", data, r.MediaType())
	}
	if _, err := root.Rename(ctx, "x"); !apperr.IsForbidden(err) {
		t.Errorf("rename root: %v", err)
	}
}

func TestChildrenFilters(t *testing.T) {
	ctx := context.Background()
	root := newWorkspace(t)
	for _, n := range []string{"b", "a"} {
		if _, err := root.CreateFolder(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := root.CreateFile(ctx, "c.txt", nil); err != nil {
		t.Fatal(err)
	}

	folders, _ := root.ChildFolders(ctx)
	if len(folders) != 2 || folders[0].Name() != "a" {
		t.Errorf("folders = %v", folders)
	}
	files, _ := root.ChildFiles(ctx)
	if len(files) != 1 || files[0].Name() != "c.txt" {
		t.Errorf("files = %v", files)
	}

	removed, _ := root.GetChild(ctx, "a")
	if err := removed.Remove(ctx); err != nil {
		t.Fatal(err)
	}
	if err := removed.Remove(ctx); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
