package entry

import (
	"context"
	"io"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// FolderEntry is a folder in the workspace.
type FolderEntry struct{ base }

// NewFolder wraps a folder handle.
func NewFolder(f *vfs.File) *FolderEntry { return &FolderEntry{base{f}} }

// Root returns the workspace root folder of fsys.
func Root(ctx context.Context, fsys *vfs.FileSystem) (*FolderEntry, error) {
	f, err := fsys.Root(ctx)
	if err != nil {
		return nil, err
	}
	return NewFolder(f), nil
}

// Lookup returns the entry at an absolute path, or nil when absent.
func Lookup(ctx context.Context, fsys *vfs.FileSystem, p string) (Entry, error) {
	f, err := fsys.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	return Wrap(f), nil
}

// LookupFolder returns the folder at an absolute path, or nil when there is
// no folder there.
func LookupFolder(ctx context.Context, fsys *vfs.FileSystem, p string) (*FolderEntry, error) {
	e, err := Lookup(ctx, fsys, p)
	if err != nil {
		return nil, err
	}
	folder, _ := e.(*FolderEntry)
	return folder, nil
}

// GetChild resolves a relative, possibly multi-segment path. It returns nil
// without error when nothing exists there.
func (e *FolderEntry) GetChild(ctx context.Context, rel string) (Entry, error) {
	f, err := e.f.Child(ctx, rel)
	if err != nil {
		return nil, err
	}
	return Wrap(f), nil
}

// GetChildFolder is GetChild restricted to folders.
func (e *FolderEntry) GetChildFolder(ctx context.Context, rel string) (*FolderEntry, error) {
	c, err := e.GetChild(ctx, rel)
	if err != nil {
		return nil, err
	}
	folder, _ := c.(*FolderEntry)
	return folder, nil
}

// GetChildFile is GetChild restricted to files.
func (e *FolderEntry) GetChildFile(ctx context.Context, rel string) (*FileEntry, error) {
	c, err := e.GetChild(ctx, rel)
	if err != nil {
		return nil, err
	}
	file, _ := c.(*FileEntry)
	return file, nil
}

// CreateFolder creates rel and any missing intermediate folders. An
// existing folder is returned; an existing file in the way is a Conflict.
func (e *FolderEntry) CreateFolder(ctx context.Context, rel string) (*FolderEntry, error) {
	f, err := e.f.CreateFolder(ctx, rel)
	if err != nil {
		return nil, err
	}
	return NewFolder(f), nil
}

// CreateFile creates a new file. An existing item named name is a Conflict.
func (e *FolderEntry) CreateFile(ctx context.Context, name string, content []byte) (*FileEntry, error) {
	f, err := e.f.CreateFile(ctx, name, content)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

// Filter selects entries in Children.
type Filter func(Entry) bool

// Children lists direct children accepted by filter (all when nil).
func (e *FolderEntry) Children(ctx context.Context, filter Filter) ([]Entry, error) {
	files, err := e.f.Children(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(files))
	for _, f := range files {
		c := Wrap(f)
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChildFolders lists direct child folders.
func (e *FolderEntry) ChildFolders(ctx context.Context) ([]*FolderEntry, error) {
	children, err := e.Children(ctx, func(c Entry) bool { return c.IsFolder() })
	if err != nil {
		return nil, err
	}
	out := make([]*FolderEntry, len(children))
	for i, c := range children {
		out[i] = c.(*FolderEntry)
	}
	return out, nil
}

// ChildFiles lists direct child files.
func (e *FolderEntry) ChildFiles(ctx context.Context) ([]*FileEntry, error) {
	children, err := e.Children(ctx, func(c Entry) bool { return c.IsFile() })
	if err != nil {
		return nil, err
	}
	out := make([]*FileEntry, len(children))
	for i, c := range children {
		out[i] = c.(*FileEntry)
	}
	return out, nil
}

// Rename renames the folder; descendants follow.
func (e *FolderEntry) Rename(ctx context.Context, newName string) (*FolderEntry, error) {
	if e.f.IsRoot() {
		return nil, apperr.Forbiddenf("the workspace root cannot be renamed")
	}
	f, err := e.f.Rename(ctx, newName)
	if err != nil {
		return nil, err
	}
	return NewFolder(f), nil
}

// MoveTo moves the folder subtree into newParentPath.
func (e *FolderEntry) MoveTo(ctx context.Context, newParentPath, newName string, overwrite bool) (*FolderEntry, error) {
	f, err := e.relocate(ctx, newParentPath, newName, overwrite, true)
	if err != nil {
		return nil, err
	}
	return NewFolder(f), nil
}

// CopyTo recursively copies the folder into newParentPath.
func (e *FolderEntry) CopyTo(ctx context.Context, newParentPath, newName string, overwrite bool) (*FolderEntry, error) {
	f, err := e.relocate(ctx, newParentPath, newName, overwrite, false)
	if err != nil {
		return nil, err
	}
	return NewFolder(f), nil
}

// Unzip extracts a zip archive into the folder.
func (e *FolderEntry) Unzip(ctx context.Context, r io.Reader, skipFirstLevel bool, stripComponents int) error {
	return e.f.Unzip(ctx, r, skipFirstLevel, stripComponents)
}

// Zip writes the folder contents as a zip archive.
func (e *FolderEntry) Zip(ctx context.Context, w io.Writer) error {
	return e.f.Zip(ctx, w)
}

// Walk visits the folder subtree depth-first; see vfs.File.Walk.
func (e *FolderEntry) Walk(ctx context.Context, visit func(Entry) error) error {
	return e.f.Walk(ctx, func(f *vfs.File) error { return visit(Wrap(f)) })
}
