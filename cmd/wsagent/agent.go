package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/config"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/handler"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/importer"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metadata/postgres"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/project"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/projecttype"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/storage"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vcs"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vcs/git"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/local"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/watcher"
)

// agent holds the wired components of one workspace.
type agent struct {
	cfg      *config.Config
	fsys     *vfs.FileSystem
	disk     *local.Driver // nil for the memory store
	blobs    storage.Backend
	bus      *events.Broadcaster
	manager  *project.Manager
	watchers *watcher.Manager
	cache    *vcs.StatusCache
	detector *vcs.Detector

	closers []func() error
	once    sync.Once
}

func newAgent(ctx context.Context, cfg *config.Config) (*agent, error) {
	a := &agent{cfg: cfg, bus: events.NewBroadcaster(), watchers: watcher.NewManager()}

	blobs, err := storage.NewContentBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("content backend: %w", err)
	}
	a.blobs = blobs

	switch cfg.StoreBackend {
	case "local":
		fsys, disk, err := local.NewFileSystem(cfg.WorkspaceRoot)
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		a.fsys, a.disk = fsys, disk
	default:
		a.fsys = memory.NewFileSystem(blobs, memory.Options{Compress: true})
	}
	a.fsys.AddListener(a.watchers)

	types := projecttype.NewRegistry()
	if cfg.ProjectTypesFile != "" {
		defs, err := projecttype.LoadFile(cfg.ProjectTypesFile)
		if err != nil {
			return nil, fmt.Errorf("load project types: %w", err)
		}
		if err := types.RegisterAll(defs...); err != nil {
			return nil, fmt.Errorf("register project types: %w", err)
		}
		logging.Info("project types loaded",
			zap.String("file", cfg.ProjectTypesFile), zap.Int("count", len(defs)))
	}

	var store project.ConfigStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		store = pg
		logging.Info("project configs stored in postgres")
	}

	a.manager, err = project.New(project.Options{
		FileSystem:    a.fsys,
		Types:         types,
		Handlers:      handler.NewRegistry(),
		Store:         store,
		Importers:     importer.NewRegistry(importer.ZipImporter{Blobs: blobs}, importer.GitImporter{}),
		Events:        a.bus,
		ProgressDelay: cfg.ImportProgressDelay,
	})
	if err != nil {
		return nil, err
	}

	a.cache = vcs.NewStatusCache(a.fsys, git.Factory{Resolve: a.resolveDisk})
	a.detector = vcs.NewDetector(a.cache, a.manager.OwnerPath)
	return a, nil
}

// resolveDisk maps a workspace path to its directory on disk.
func (a *agent) resolveDisk(p string) (string, bool) {
	if a.disk == nil {
		return "", false
	}
	return a.disk.OSPath(p), true
}

// start runs the background watchers: the change detector, the on-disk
// change feed and the .git directory watcher.
func (a *agent) start(ctx context.Context) error {
	a.detector.Start(ctx, a.watchers, a.bus)
	a.closers = append(a.closers, func() error { a.detector.Stop(); return nil })

	if a.disk == nil {
		return nil
	}
	feed, err := watcher.NewLocalFeed(a.disk.RootDir(), a.disk.VFSPath, a.watchers, vcs.MetadataDirs...)
	if err != nil {
		return fmt.Errorf("watch workspace: %w", err)
	}
	a.closers = append(a.closers, feed.Close)

	if !a.cfg.VCSWatch {
		return nil
	}
	gw, err := watcher.NewGitDirWatcher(clock.Real(), 0, func(p string) {
		a.bus.Publish(events.Event{Type: events.EventVCSStatusChanged, Path: p, Project: p})
	})
	if err != nil {
		return fmt.Errorf("watch git directories: %w", err)
	}
	a.closers = append(a.closers, gw.Close)

	projects, err := a.manager.GetProjects(ctx)
	if err != nil {
		return err
	}
	for _, proj := range projects {
		a.watchGitDir(gw, proj.Path)
	}

	ch := a.bus.Subscribe()
	go func() {
		for ev := range ch {
			switch ev.Type {
			case events.EventProjectCreated:
				a.watchGitDir(gw, ev.Project)
			case events.EventProjectDeleted:
				gw.Remove(ev.Project)
			}
		}
	}()
	a.closers = append(a.closers, func() error { a.bus.Unsubscribe(ch); return nil })
	return nil
}

func (a *agent) watchGitDir(gw *watcher.GitDirWatcher, p string) {
	if p == "" || gw.Watching(p) {
		return
	}
	dir := filepath.Join(a.disk.OSPath(p), ".git")
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return
	}
	if err == nil {
		err = gw.Add(p, dir)
	}
	if err != nil {
		logging.Warn("watch git directory", zap.String("project", p), zap.Error(err))
	}
}

// Close stops background work in reverse start order.
func (a *agent) Close() error {
	var errs []error
	a.once.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.watchers.Close()
	})
	return errors.Join(errs...)
}
