package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
)

// File is a handle to one file or folder. Handles carry a snapshot of the
// node metadata taken when the handle was obtained; content and children
// are always read live.
type File struct {
	fsys *FileSystem
	info Info
}

func (f *File) Path() string { return f.info.Path }
func (f *File) Name() string { return f.info.Name() }
func (f *File) IsFile() bool { return !f.info.Dir }
func (f *File) IsFolder() bool { return f.info.Dir }
func (f *File) IsRoot() bool { return f.info.Path == Root }
func (f *File) MediaType() string { return f.info.MediaType }
func (f *File) Size() int64 { return f.info.Size }
func (f *File) Created() time.Time { return f.info.Created }
func (f *File) Modified() time.Time { return f.info.Modified }
func (f *File) Info() Info { return f.info }
func (f *File) FileSystem() *FileSystem { return f.fsys }

func (f *File) String() string { return f.info.Path }

// Parent returns the parent folder, or nil for the root.
func (f *File) Parent(ctx context.Context) (*File, error) {
	if f.IsRoot() {
		return nil, nil
	}
	return f.fsys.Get(ctx, Parent(f.info.Path))
}

// Child resolves a possibly multi-segment path relative to f. It returns
// nil without error when the path does not exist.
func (f *File) Child(ctx context.Context, rel string) (*File, error) {
	target := Join(f.info.Path, rel)
	if target == f.info.Path {
		return f.fsys.Get(ctx, target)
	}
	if !IsAncestor(f.info.Path, target) {
		return nil, nil
	}
	return f.fsys.Get(ctx, target)
}

// Children lists the direct children of a folder in name order. Files have
// no children.
func (f *File) Children(ctx context.Context) ([]*File, error) {
	if !f.info.Dir {
		return nil, nil
	}
	f.fsys.mu.RLock()
	defer f.fsys.mu.RUnlock()
	if err := f.fsys.checkLocked(ctx, f.info.Path, PermRead); err != nil {
		return nil, err
	}
	return f.fsys.listLocked(ctx, f.info.Path)
}

func (f *File) requireFolder(op string) error {
	if !f.info.Dir {
		return apperr.Conflictf("%s: %s is not a folder", op, f.info.Path)
	}
	return nil
}

func (f *File) requireFile(op string) error {
	if f.info.Dir {
		return apperr.Conflictf("%s: %s is not a file", op, f.info.Path)
	}
	return nil
}

// CreateFile creates a new file named name in folder f.
func (f *File) CreateFile(ctx context.Context, name string, content []byte) (*File, error) {
	if err := f.requireFolder("create file"); err != nil {
		return nil, err
	}
	if !ValidName(name) {
		return nil, apperr.Conflictf("invalid file name %q", name)
	}
	fsys := f.fsys
	target := Join(f.info.Path, name)

	fsys.mu.Lock()
	info, err := func() (Info, error) {
		if err := fsys.checkLocked(ctx, f.info.Path, PermWrite); err != nil {
			return Info{}, err
		}
		if _, err := fsys.driver.Stat(ctx, target); err == nil {
			return Info{}, apperr.Conflictf("item %s already exists", target)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Info{}, fsys.storeErr("stat", target, err)
		}
		if err := fsys.driver.WriteFile(ctx, target, content, DetectMediaType(name, content)); err != nil {
			return Info{}, fsys.storeErr("write", target, err)
		}
		info, err := fsys.driver.Stat(ctx, target)
		if err != nil {
			return Info{}, fsys.storeErr("stat", target, err)
		}
		return info, nil
	}()
	fsys.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fsys.ok("create_file")
	metrics.RecordContentWrite(len(content))
	fsys.notify(ChangeEvent{Kind: Created, Path: target})
	return &File{fsys: fsys, info: info}, nil
}

// CreateFolder creates rel below f including missing intermediate folders.
// An existing folder at rel is returned as is.
func (f *File) CreateFolder(ctx context.Context, rel string) (*File, error) {
	if err := f.requireFolder("create folder"); err != nil {
		return nil, err
	}
	if len(Segments(rel)) == 0 {
		return nil, apperr.Conflictf("empty folder name")
	}
	fsys := f.fsys
	target := Join(f.info.Path, rel)
	if !IsAncestor(f.info.Path, target) {
		return nil, apperr.Conflictf("folder %q escapes %s", rel, f.info.Path)
	}

	fsys.mu.Lock()
	var created []string
	info, err := func() (Info, error) {
		if err := fsys.checkLocked(ctx, f.info.Path, PermWrite); err != nil {
			return Info{}, err
		}
		var err error
		created, err = fsys.mkdirAllLocked(ctx, target)
		if err != nil {
			return Info{}, err
		}
		info, err := fsys.driver.Stat(ctx, target)
		if err != nil {
			return Info{}, fsys.storeErr("stat", target, err)
		}
		return info, nil
	}()
	fsys.mu.Unlock()

	fsys.notify(createdEvents(created)...)
	if err != nil {
		return nil, err
	}
	fsys.ok("create_folder")
	return &File{fsys: fsys, info: info}, nil
}

// Content opens the file content for reading.
func (f *File) Content(ctx context.Context) (io.ReadCloser, error) {
	if err := f.requireFile("read content"); err != nil {
		return nil, err
	}
	f.fsys.mu.RLock()
	defer f.fsys.mu.RUnlock()
	if err := f.fsys.checkLocked(ctx, f.info.Path, PermRead); err != nil {
		return nil, err
	}
	rc, err := f.fsys.driver.Open(ctx, f.info.Path)
	if err != nil {
		return nil, f.fsys.storeErr("open", f.info.Path, err)
	}
	f.fsys.ok("open")
	return rc, nil
}

// ContentBytes reads the whole file content.
func (f *File) ContentBytes(ctx context.Context) ([]byte, error) {
	rc, err := f.Content(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, "read "+f.info.Path)
	}
	return data, nil
}

// UpdateContent replaces the file content, keeping its media type.
func (f *File) UpdateContent(ctx context.Context, data []byte) error {
	return f.mutate(ctx, "update_content", func() error {
		if err := f.fsys.driver.WriteFile(ctx, f.info.Path, data, ""); err != nil {
			return f.fsys.storeErr("write", f.info.Path, err)
		}
		metrics.RecordContentWrite(len(data))
		return nil
	})
}

// SetMediaType changes the media type, keeping the content.
func (f *File) SetMediaType(ctx context.Context, mediaType string) error {
	return f.mutate(ctx, "set_media_type", func() error {
		if err := f.fsys.driver.SetMediaType(ctx, f.info.Path, mediaType); err != nil {
			return f.fsys.storeErr("set media type", f.info.Path, err)
		}
		return nil
	})
}

// mutate runs a write on f's own node under the store lock, refreshes the
// handle and emits a Modified event.
func (f *File) mutate(ctx context.Context, op string, apply func() error) error {
	fsys := f.fsys
	fsys.mu.Lock()
	err := func() error {
		if err := fsys.checkLocked(ctx, f.info.Path, PermWrite); err != nil {
			return err
		}
		info, err := fsys.driver.Stat(ctx, f.info.Path)
		if err != nil {
			return fsys.storeErr("stat", f.info.Path, err)
		}
		if op == "update_content" && info.Dir {
			return apperr.Conflictf("update content: %s is not a file", f.info.Path)
		}
		if err := apply(); err != nil {
			return err
		}
		if info, err = fsys.driver.Stat(ctx, f.info.Path); err != nil {
			return fsys.storeErr("stat", f.info.Path, err)
		}
		f.info = info
		return nil
	}()
	fsys.mu.Unlock()
	if err != nil {
		return err
	}
	fsys.ok(op)
	fsys.notify(ChangeEvent{Kind: Modified, Path: f.info.Path, Folder: f.info.Dir})
	return nil
}

// Delete removes the node and, for folders, its whole subtree. Deleting a
// node that no longer exists succeeds.
func (f *File) Delete(ctx context.Context) error {
	if f.IsRoot() {
		return apperr.Forbiddenf("the workspace root cannot be deleted")
	}
	fsys := f.fsys
	fsys.mu.Lock()
	var removed []ChangeEvent
	err := func() error {
		info, err := fsys.driver.Stat(ctx, f.info.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fsys.storeErr("stat", f.info.Path, err)
		}
		if err := fsys.checkLocked(ctx, f.info.Path, PermWrite); err != nil {
			return err
		}
		removed, err = fsys.subtreeEventsLocked(ctx, &File{fsys: fsys, info: info}, Deleted)
		if err != nil {
			return err
		}
		if err := fsys.driver.Remove(ctx, f.info.Path); err != nil {
			return fsys.storeErr("remove", f.info.Path, err)
		}
		fsys.dropACLsLocked(f.info.Path)
		return nil
	}()
	fsys.mu.Unlock()
	if err != nil {
		return err
	}
	fsys.ok("delete")
	fsys.notify(removed...)
	return nil
}

// subtreeEventsLocked returns one event per node of the subtree at root,
// children after their parent.
func (fsys *FileSystem) subtreeEventsLocked(ctx context.Context, root *File, kind ChangeKind) ([]ChangeEvent, error) {
	var evs []ChangeEvent
	err := fsys.walkLocked(ctx, root, func(n *File) error {
		evs = append(evs, ChangeEvent{Kind: kind, Path: n.info.Path, Folder: n.info.Dir})
		return nil
	})
	return evs, err
}

// CopyTo copies f into parent under newName (f's name when empty). The
// destination must not exist. Folders are copied recursively.
func (f *File) CopyTo(ctx context.Context, parent *File, newName string) (*File, error) {
	return f.relocate(ctx, parent.info.Path, newName, false)
}

// MoveTo moves f into parent under newName (f's name when empty). The
// destination must not exist.
func (f *File) MoveTo(ctx context.Context, parent *File, newName string) (*File, error) {
	return f.relocate(ctx, parent.info.Path, newName, true)
}

// Rename changes the name of f within its parent folder.
func (f *File) Rename(ctx context.Context, newName string) (*File, error) {
	if f.IsRoot() {
		return nil, apperr.Forbiddenf("the workspace root cannot be renamed")
	}
	if newName == f.Name() {
		return f, nil
	}
	return f.relocate(ctx, Parent(f.info.Path), newName, true)
}

func (f *File) relocate(ctx context.Context, parentPath, newName string, move bool) (*File, error) {
	op := "copy"
	if move {
		op = "move"
	}
	if newName == "" {
		newName = f.Name()
	}
	if !ValidName(newName) {
		return nil, apperr.Conflictf("invalid name %q", newName)
	}
	fsys := f.fsys
	src := f.info.Path
	dst := Join(parentPath, newName)
	if dst == src || IsAncestor(src, dst) {
		return nil, apperr.Conflictf("cannot %s %s into itself", op, src)
	}
	if move && f.IsRoot() {
		return nil, apperr.Forbiddenf("the workspace root cannot be moved")
	}

	fsys.mu.Lock()
	var events []ChangeEvent
	info, err := func() (Info, error) {
		srcInfo, err := fsys.driver.Stat(ctx, src)
		if err != nil {
			return Info{}, fsys.storeErr("stat", src, err)
		}
		parentInfo, err := fsys.driver.Stat(ctx, parentPath)
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, apperr.NotFoundf("destination folder %s does not exist", parentPath)
		}
		if err != nil {
			return Info{}, fsys.storeErr("stat", parentPath, err)
		}
		if !parentInfo.Dir {
			return Info{}, apperr.Conflictf("destination %s is not a folder", parentPath)
		}
		srcPerm := PermRead
		if move {
			srcPerm = PermWrite
		}
		if err := fsys.checkLocked(ctx, src, srcPerm); err != nil {
			return Info{}, err
		}
		if err := fsys.checkLocked(ctx, parentPath, PermWrite); err != nil {
			return Info{}, err
		}
		if _, err := fsys.driver.Stat(ctx, dst); err == nil {
			return Info{}, apperr.Conflictf("item %s already exists", dst)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Info{}, fsys.storeErr("stat", dst, err)
		}

		if move {
			if events, err = fsys.subtreeEventsLocked(ctx, &File{fsys: fsys, info: srcInfo}, Deleted); err != nil {
				return Info{}, err
			}
			if err := fsys.driver.Move(ctx, src, dst); err != nil {
				return Info{}, fsys.storeErr("move", src, err)
			}
			fsys.moveACLsLocked(src, dst)
		} else if err := fsys.driver.Copy(ctx, src, dst); err != nil {
			return Info{}, fsys.storeErr("copy", src, err)
		}

		dstInfo, err := fsys.driver.Stat(ctx, dst)
		if err != nil {
			return Info{}, fsys.storeErr("stat", dst, err)
		}
		created, err := fsys.subtreeEventsLocked(ctx, &File{fsys: fsys, info: dstInfo}, Created)
		if err != nil {
			return Info{}, err
		}
		events = append(events, created...)
		return dstInfo, nil
	}()
	fsys.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fsys.ok(op)
	fsys.notify(events...)
	return &File{fsys: fsys, info: info}, nil
}

// ACL returns the entries set directly on f. Inherited entries are not
// included.
func (f *File) ACL(ctx context.Context) ([]AccessControlEntry, error) {
	f.fsys.mu.RLock()
	defer f.fsys.mu.RUnlock()
	if err := f.fsys.checkLocked(ctx, f.info.Path, PermRead); err != nil {
		return nil, err
	}
	acl := f.fsys.acls[f.info.Path]
	out := make([]AccessControlEntry, len(acl))
	for i, e := range acl {
		out[i] = AccessControlEntry{Principal: e.Principal, Permissions: append([]string(nil), e.Permissions...)}
	}
	return out, nil
}

// UpdateACL merges entries into the ACL of f; see MergeACL.
func (f *File) UpdateACL(ctx context.Context, entries []AccessControlEntry, clearExisting bool) error {
	fsys := f.fsys
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if _, err := fsys.driver.Stat(ctx, f.info.Path); err != nil {
		return fsys.storeErr("stat", f.info.Path, err)
	}
	if err := fsys.checkLocked(ctx, f.info.Path, PermUpdateACL); err != nil {
		return err
	}
	merged := MergeACL(fsys.acls[f.info.Path], entries, clearExisting)
	if len(merged) == 0 {
		delete(fsys.acls, f.info.Path)
	} else {
		fsys.acls[f.info.Path] = merged
	}
	fsys.ok("update_acl")
	return nil
}

// Permissions returns what the caller in ctx may do with f.
func (f *File) Permissions(ctx context.Context) []string {
	return f.fsys.Permissions(ctx, f.info.Path)
}

// Permissions returns what the caller in ctx may do with the node at p.
func (fsys *FileSystem) Permissions(ctx context.Context, p string) []string {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return effectivePermissions(fsys.aclLocked(Clean(p)), auth.PrincipalFrom(ctx))
}

// Walk visits f and its descendants depth-first in name order. Returning
// SkipDir from visit for a folder skips its subtree. No store lock is held
// while visit runs.
func (f *File) Walk(ctx context.Context, visit func(*File) error) error {
	if err := visit(f); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	children, err := f.Children(ctx)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := c.Walk(ctx, visit); err != nil {
			return err
		}
	}
	return nil
}

// SkipDir may be returned from a Walk callback to skip a folder's subtree.
var SkipDir = fs.SkipDir
