// Package vfs is the virtual file store the workspace agent runs on: a
// hierarchical tree of files and folders with per-node ACLs, content
// streams, zip import and export, and change notifications. Storage itself
// is delegated to a Driver.
package vfs

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
)

// ChangeKind classifies a ChangeEvent.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// ChangeEvent reports a mutation of one path.
type ChangeEvent struct {
	Kind   ChangeKind
	Path   string
	Folder bool
}

// Listener receives change events after each mutation. Notify is called
// synchronously from the mutating goroutine and must not block.
type Listener interface {
	Notify(ev ChangeEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ChangeEvent)

// Notify calls f(ev).
func (f ListenerFunc) Notify(ev ChangeEvent) { f(ev) }

// FileSystem is a VirtualFile store over a Driver. Writers are serialized
// by a single lock, so a reader never observes a half-applied mutation.
type FileSystem struct {
	driver Driver

	mu   sync.RWMutex
	acls map[string][]AccessControlEntry

	lmu       sync.RWMutex
	listeners []Listener
}

// New creates a FileSystem over d.
func New(d Driver) *FileSystem {
	return &FileSystem{driver: d, acls: make(map[string][]AccessControlEntry)}
}

// Kind returns the driver kind.
func (fsys *FileSystem) Kind() string { return fsys.driver.Kind() }

// AddListener registers l for change events.
func (fsys *FileSystem) AddListener(l Listener) {
	fsys.lmu.Lock()
	fsys.listeners = append(fsys.listeners, l)
	fsys.lmu.Unlock()
}

func (fsys *FileSystem) notify(events ...ChangeEvent) {
	fsys.lmu.RLock()
	ls := fsys.listeners
	fsys.lmu.RUnlock()
	for _, ev := range events {
		for _, l := range ls {
			l.Notify(ev)
		}
	}
}

// Root returns the workspace root folder.
func (fsys *FileSystem) Root(ctx context.Context) (*File, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	info, err := fsys.driver.Stat(ctx, Root)
	if err != nil {
		return nil, fsys.storeErr("stat", Root, err)
	}
	return &File{fsys: fsys, info: info}, nil
}

// Get returns the node at p, or nil when it does not exist.
func (fsys *FileSystem) Get(ctx context.Context, p string) (*File, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return fsys.getLocked(ctx, Clean(p))
}

func (fsys *FileSystem) getLocked(ctx context.Context, p string) (*File, error) {
	info, err := fsys.driver.Stat(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fsys.storeErr("stat", p, err)
	}
	if err := fsys.checkLocked(ctx, p, PermRead); err != nil {
		return nil, err
	}
	return &File{fsys: fsys, info: info}, nil
}

// storeErr classifies a driver failure.
func (fsys *FileSystem) storeErr(op, p string, err error) error {
	metrics.RecordStoreOperation(fsys.driver.Kind(), op, false)
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(apperr.ErrNotFound, err, op+" "+p)
	}
	if apperr.Kind(err) != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrServer, err, op+" "+p)
}

func (fsys *FileSystem) ok(op string) {
	metrics.RecordStoreOperation(fsys.driver.Kind(), op, true)
}

// aclLocked returns the ACL governing p: the ACL of p itself or of its
// nearest ancestor that has one.
func (fsys *FileSystem) aclLocked(p string) []AccessControlEntry {
	for {
		if acl, ok := fsys.acls[p]; ok && len(acl) > 0 {
			return acl
		}
		if p == Root {
			return nil
		}
		p = Parent(p)
	}
}

func (fsys *FileSystem) checkLocked(ctx context.Context, p, perm string) error {
	caller := auth.PrincipalFrom(ctx)
	if caller == nil {
		return nil
	}
	allowed := hasPermission(effectivePermissions(fsys.aclLocked(p), caller), perm)
	metrics.RecordPermissionCheck(allowed)
	if !allowed {
		logging.WithContext(ctx).Debug("permission denied",
			zap.String("path", p), zap.String("principal", caller.Name), zap.String("permission", perm))
		return apperr.Forbiddenf("%s has no %s permission on %s", caller.Name, perm, p)
	}
	return nil
}

// moveACLsLocked rekeys the ACLs of a moved subtree.
func (fsys *FileSystem) moveACLsLocked(src, dst string) {
	for p, acl := range fsys.acls {
		if p == src || IsAncestor(src, p) {
			delete(fsys.acls, p)
			fsys.acls[Rebase(p, src, dst)] = acl
		}
	}
}

func (fsys *FileSystem) dropACLsLocked(p string) {
	for k := range fsys.acls {
		if k == p || IsAncestor(p, k) {
			delete(fsys.acls, k)
		}
	}
}

func (fsys *FileSystem) listLocked(ctx context.Context, p string) ([]*File, error) {
	infos, err := fsys.driver.List(ctx, p)
	if err != nil {
		return nil, fsys.storeErr("list", p, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	out := make([]*File, 0, len(infos))
	for _, info := range infos {
		out = append(out, &File{fsys: fsys, info: info})
	}
	return out, nil
}

// walkLocked visits p and every descendant in depth-first, name order.
func (fsys *FileSystem) walkLocked(ctx context.Context, f *File, visit func(*File) error) error {
	if err := visit(f); err != nil {
		return err
	}
	if !f.info.Dir {
		return nil
	}
	children, err := fsys.listLocked(ctx, f.info.Path)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := fsys.walkLocked(ctx, c, visit); err != nil {
			return err
		}
	}
	return nil
}

// mkdirAllLocked creates p and missing ancestors, returning the created
// paths in creation order.
func (fsys *FileSystem) mkdirAllLocked(ctx context.Context, p string) ([]string, error) {
	var created []string
	cur := Root
	for _, seg := range Segments(p) {
		cur = Join(cur, seg)
		info, err := fsys.driver.Stat(ctx, cur)
		switch {
		case err == nil && info.Dir:
			continue
		case err == nil:
			return created, apperr.Conflictf("%s exists and is not a folder", cur)
		case !errors.Is(err, fs.ErrNotExist):
			return created, fsys.storeErr("stat", cur, err)
		}
		if err := fsys.driver.Mkdir(ctx, cur); err != nil {
			return created, fsys.storeErr("mkdir", cur, err)
		}
		created = append(created, cur)
	}
	return created, nil
}

func createdEvents(paths []string) []ChangeEvent {
	evs := make([]ChangeEvent, 0, len(paths))
	for _, p := range paths {
		evs = append(evs, ChangeEvent{Kind: Created, Path: p, Folder: true})
	}
	return evs
}
