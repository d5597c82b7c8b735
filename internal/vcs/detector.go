package vcs

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/watcher"
)

// MetadataDirs are VCS folders whose contents never count as working tree
// changes.
var MetadataDirs = []string{".git", ".svn", ".hg"}

// Locator maps any workspace path to the path of the project owning it.
type Locator func(ctx context.Context, p string) (string, error)

// Detector keeps a StatusCache current: it marks touched paths dirty and
// recomputes their delta in the background, replaces whole snapshots on
// VCS-native status changes and forgets deleted projects. Failures are
// logged and leave the cache stale.
type Detector struct {
	cache   *StatusCache
	locate  Locator
	factory ConnectionFactory

	mu     sync.Mutex
	sub    *watcher.Subscription
	events chan events.Event
	bus    *events.Broadcaster
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDetector returns a detector for cache. locate resolves file paths to
// projects.
func NewDetector(cache *StatusCache, locate Locator) *Detector {
	return &Detector{cache: cache, locate: locate, factory: cache.factory}
}

// Start registers on wm for every non-metadata path and, when bus is not
// nil, listens for project deletions and VCS status changes.
func (d *Detector) Start(ctx context.Context, wm *watcher.Manager, bus *events.Broadcaster) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.sub = wm.Register(watcher.ExcludeSegments(MetadataDirs...), watcher.Handlers{
		OnCreate: d.onFileEvent,
		OnModify: d.onFileEvent,
		OnDelete: d.onFileEvent,
	})
	d.done = make(chan struct{})
	if bus == nil {
		close(d.done)
		return
	}
	d.bus = bus
	d.events = bus.Subscribe()
	go d.consume(d.events, d.done)
}

// Stop unregisters the detector.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.sub == nil {
		d.mu.Unlock()
		return
	}
	d.sub.Unregister()
	d.sub = nil
	d.cancel()
	if d.bus != nil {
		d.bus.Unsubscribe(d.events)
	}
	done := d.done
	d.mu.Unlock()
	<-done
}

func (d *Detector) consume(ch <-chan events.Event, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		switch ev.Type {
		case events.EventProjectDeleted:
			d.cache.Forget(ev.Project)
		case events.EventVCSStatusChanged:
			d.StatusChanged(d.ctx, ev.Project)
		}
	}
}

func (d *Detector) onFileEvent(ev vfs.ChangeEvent) {
	ctx := d.ctx
	project, err := d.locate(ctx, ev.Path)
	if err != nil || project == "" {
		logging.Debug("no project for changed path", zap.String("path", ev.Path), zap.Error(err))
		return
	}
	project = vfs.Clean(project)
	if ev.Kind == vfs.Deleted && ev.Path == project {
		d.cache.Forget(project)
		return
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(ev.Path, project), "/")
	if rel == "" {
		return
	}
	d.cache.MarkDirty(project, rel)
	if d.cache.Cached(project) == nil {
		return
	}
	if _, err := d.cache.GetStatus(ctx, project, []string{rel}); err != nil {
		logging.WithContext(ctx).Warn("precompute vcs status",
			zap.String("project", project), zap.String("path", rel), zap.Error(err))
	}
}

// StatusChanged fetches the whole status of project and replaces the
// cached snapshot with it.
func (d *Detector) StatusChanged(ctx context.Context, project string) {
	conn, err := d.factory.Connect(ctx, project)
	if err != nil {
		logging.WithContext(ctx).Warn("open repository", zap.String("project", project), zap.Error(err))
		return
	}
	st, err := conn.Status(ctx, nil)
	if err != nil {
		logging.WithContext(ctx).Warn("vcs status", zap.String("project", project), zap.Error(err))
		return
	}
	d.cache.OnStatusChanged(project, st)
}
