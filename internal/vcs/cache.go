package vcs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// StatusCache answers status queries from a per-project snapshot and only
// calls the repository for paths whose modification time changed or that
// were reported dirty since they were last computed.
type StatusCache struct {
	fsys    *vfs.FileSystem
	factory ConnectionFactory

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	status *Status
	// full is set once the whole repository has been computed.
	full bool
	// mtimes holds the modification time last seen for each queried path;
	// the zero time records an absent path.
	mtimes map[string]time.Time
	dirty  map[string]uint64
	gen    uint64
}

// NewStatusCache returns an empty cache reading live modification times
// from fsys.
func NewStatusCache(fsys *vfs.FileSystem, factory ConnectionFactory) *StatusCache {
	return &StatusCache{
		fsys:    fsys,
		factory: factory,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *StatusCache) entryLocked(project string) *cacheEntry {
	e, ok := c.entries[project]
	if !ok {
		e = &cacheEntry{mtimes: make(map[string]time.Time), dirty: make(map[string]uint64)}
		c.entries[project] = e
	}
	return e
}

// GetStatus returns the status of paths (relative to project) in the
// repository at project. An empty paths asks for the whole repository.
func (c *StatusCache) GetStatus(ctx context.Context, project string, paths []string) (*Status, error) {
	project = vfs.Clean(project)
	paths = normalize(paths)

	live, err := c.liveTimes(ctx, project, paths)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	e := c.entryLocked(project)
	if c.validLocked(e, paths, live) {
		st := e.status.Clone()
		c.mu.Unlock()
		metrics.RecordVCSCacheLookup(true)
		return st, nil
	}
	gen := e.gen
	c.mu.Unlock()
	metrics.RecordVCSCacheLookup(false)

	fresh, err := c.fetch(ctx, project, paths)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entryLocked(project)
	if fresh == nil {
		fresh = &Status{}
	}
	if len(paths) == 0 || e.status == nil {
		e.status = fresh.Clone()
		e.status.Clean = e.status.IsEmpty()
		e.full = e.full || len(paths) == 0
	} else {
		e.status.merge(fresh, paths)
	}
	for p, t := range live {
		e.mtimes[p] = t
	}
	for p, g := range e.dirty {
		if g <= gen && (len(paths) == 0 || coveredBy(p, paths)) {
			delete(e.dirty, p)
		}
	}
	return e.status.Clone(), nil
}

func (c *StatusCache) validLocked(e *cacheEntry, paths []string, live map[string]time.Time) bool {
	if e.status == nil {
		return false
	}
	if len(paths) == 0 {
		if !e.full || len(e.dirty) > 0 {
			return false
		}
	}
	for _, p := range paths {
		if _, dirty := e.dirty[p]; dirty {
			return false
		}
		for d := range e.dirty {
			if coveredBy(d, []string{p}) {
				return false
			}
		}
	}
	for p, t := range live {
		recorded, ok := e.mtimes[p]
		if !ok || !recorded.Equal(t) {
			return false
		}
	}
	return true
}

// liveTimes stats each path. With no paths, every path recorded so far is
// checked again.
func (c *StatusCache) liveTimes(ctx context.Context, project string, paths []string) (map[string]time.Time, error) {
	check := paths
	if len(check) == 0 {
		c.mu.Lock()
		if e, ok := c.entries[project]; ok {
			for p := range e.mtimes {
				check = append(check, p)
			}
		}
		c.mu.Unlock()
	}
	out := make(map[string]time.Time, len(check))
	for _, p := range check {
		f, err := c.fsys.Get(ctx, vfs.Join(project, p))
		if err != nil {
			return nil, apperr.ServerBoundary(err)
		}
		var t time.Time
		if f != nil {
			t = f.Modified()
		}
		out[p] = t
	}
	return out, nil
}

func (c *StatusCache) fetch(ctx context.Context, project string, paths []string) (*Status, error) {
	start := time.Now()
	conn, err := c.factory.Connect(ctx, project)
	if err != nil {
		metrics.RecordVCSBackendCall("status", time.Since(start), false)
		return nil, apperr.Wrap(apperr.ErrServer, err, "open repository "+project)
	}
	st, err := conn.Status(ctx, paths)
	metrics.RecordVCSBackendCall("status", time.Since(start), err == nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, "status of "+project)
	}
	return st, nil
}

// GetVcsStatus classifies each of paths.
func (c *StatusCache) GetVcsStatus(ctx context.Context, project string, paths []string) (map[string]VcsStatus, error) {
	st, err := c.GetStatus(ctx, project, paths)
	if err != nil {
		return nil, err
	}
	out := make(map[string]VcsStatus, len(paths))
	for _, p := range normalize(paths) {
		out[p] = Classify(st, p)
	}
	return out, nil
}

// OnStatusChanged replaces the snapshot of project with status; nil means
// an empty status. Pending dirty marks are dropped.
func (c *StatusCache) OnStatusChanged(project string, status *Status) {
	if status == nil {
		status = &Status{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(vfs.Clean(project))
	e.status = status.Clone()
	e.status.Clean = e.status.IsEmpty()
	e.full = true
	e.dirty = make(map[string]uint64)
}

// MarkDirty forces the next query touching path to go to the repository.
func (c *StatusCache) MarkDirty(project, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(vfs.Clean(project))
	e.gen++
	e.dirty[strings.Trim(path, "/")] = e.gen
}

// Forget drops everything cached for project.
func (c *StatusCache) Forget(project string) {
	c.mu.Lock()
	delete(c.entries, vfs.Clean(project))
	c.mu.Unlock()
}

// Cached returns a copy of the snapshot for project, or nil.
func (c *StatusCache) Cached(project string) *Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[vfs.Clean(project)]; ok {
		return e.status.Clone()
	}
	return nil
}

func normalize(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
