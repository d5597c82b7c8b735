// Package entry provides the typed File/Folder view over the virtual file
// store that the project manager works with. Entries are addressed by
// path; every operation re-resolves against the live tree.
package entry

import (
	"context"
	"io"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Entry is either a *FileEntry or a *FolderEntry.
type Entry interface {
	Name() string
	Path() string
	MediaType() string
	Created() time.Time
	Modified() time.Time
	IsFile() bool
	IsFolder() bool
	VirtualFile() *vfs.File
	Parent(ctx context.Context) (*FolderEntry, error)
	Remove(ctx context.Context) error
}

type base struct {
	f *vfs.File
}

func (b base) Name() string { return b.f.Name() }
func (b base) Path() string { return b.f.Path() }
func (b base) MediaType() string { return b.f.MediaType() }
func (b base) Created() time.Time { return b.f.Created() }
func (b base) Modified() time.Time { return b.f.Modified() }
func (b base) IsFile() bool { return b.f.IsFile() }
func (b base) IsFolder() bool { return b.f.IsFolder() }
func (b base) VirtualFile() *vfs.File { return b.f }

// Parent returns the parent folder, or nil for the workspace root.
func (b base) Parent(ctx context.Context) (*FolderEntry, error) {
	p, err := b.f.Parent(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	return &FolderEntry{base{p}}, nil
}

// Remove deletes the entry. Removing an absent entry succeeds.
func (b base) Remove(ctx context.Context) error {
	return b.f.Delete(ctx)
}

// Wrap returns the typed entry for f, or nil when f is nil.
func Wrap(f *vfs.File) Entry {
	switch {
	case f == nil:
		return nil
	case f.IsFolder():
		return &FolderEntry{base{f}}
	default:
		return &FileEntry{base{f}}
	}
}

// relocate moves or copies b below newParentPath. With overwrite an
// existing destination is deleted first; without it a collision is a
// Conflict. A destination that contains b is never deleted.
func (b base) relocate(ctx context.Context, newParentPath, newName string, overwrite, move bool) (*vfs.File, error) {
	parent, err := b.f.FileSystem().Get(ctx, newParentPath)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, apperr.NotFoundf("folder %s does not exist", vfs.Clean(newParentPath))
	}
	if !parent.IsFolder() {
		return nil, apperr.Conflictf("%s is not a folder", parent.Path())
	}
	if newName == "" {
		newName = b.f.Name()
	}

	existing, err := parent.Child(ctx, newName)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Path() != b.f.Path() {
		if !overwrite {
			return nil, apperr.Conflictf("item %s already exists", existing.Path())
		}
		if vfs.IsAncestor(existing.Path(), b.f.Path()) {
			return nil, apperr.Conflictf("cannot replace %s, it contains %s", existing.Path(), b.f.Path())
		}
		if err := existing.Delete(ctx); err != nil {
			return nil, err
		}
	}

	if move {
		return b.f.MoveTo(ctx, parent, newName)
	}
	return b.f.CopyTo(ctx, parent, newName)
}

// FileEntry is a file in the workspace.
type FileEntry struct{ base }

// NewFile wraps a file handle.
func NewFile(f *vfs.File) *FileEntry { return &FileEntry{base{f}} }

// ContentAsBytes reads the whole content.
func (e *FileEntry) ContentAsBytes(ctx context.Context) ([]byte, error) {
	return e.f.ContentBytes(ctx)
}

// Content opens the content for reading. The caller closes it.
func (e *FileEntry) Content(ctx context.Context) (io.ReadCloser, error) {
	return e.f.Content(ctx)
}

// UpdateContent replaces the content and keeps the media type.
func (e *FileEntry) UpdateContent(ctx context.Context, data []byte) error {
	return e.f.UpdateContent(ctx, data)
}

// SetMediaType changes the media type and keeps the content.
func (e *FileEntry) SetMediaType(ctx context.Context, mediaType string) error {
	return e.f.SetMediaType(ctx, mediaType)
}

// Rename renames the file within its folder.
func (e *FileEntry) Rename(ctx context.Context, newName string) (*FileEntry, error) {
	f, err := e.f.Rename(ctx, newName)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

// MoveTo moves the file into newParentPath, named newName or its current
// name when newName is empty.
func (e *FileEntry) MoveTo(ctx context.Context, newParentPath, newName string, overwrite bool) (*FileEntry, error) {
	f, err := e.relocate(ctx, newParentPath, newName, overwrite, true)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

// CopyTo copies the file into newParentPath.
func (e *FileEntry) CopyTo(ctx context.Context, newParentPath, newName string, overwrite bool) (*FileEntry, error) {
	f, err := e.relocate(ctx, newParentPath, newName, overwrite, false)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}
