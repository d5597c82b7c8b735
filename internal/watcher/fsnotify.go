package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// LocalFeed turns changes made directly on disk below a local store root
// (by a terminal or build tool rather than through the agent) into change
// events on a Listener. Subdirectories are watched as they appear.
type LocalFeed struct {
	watcher *fsnotify.Watcher
	root    string
	toVFS   func(osPath string) (string, bool)
	sink    vfs.Listener
	skip    []string

	mu      sync.Mutex
	dirs    map[string]bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewLocalFeed watches root recursively. toVFS maps a disk path to its
// workspace path; directories named in skip are not descended into.
func NewLocalFeed(root string, toVFS func(string) (string, bool), sink vfs.Listener, skip ...string) (*LocalFeed, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	f := &LocalFeed{
		watcher: w,
		root:    root,
		toVFS:   toVFS,
		sink:    sink,
		skip:    skip,
		dirs:    make(map[string]bool),
		closeCh: make(chan struct{}),
	}
	if err := f.watchTree(root); err != nil {
		w.Close()
		return nil, err
	}
	f.wg.Add(1)
	go f.loop()
	return f, nil
}

func (f *LocalFeed) skipped(name string) bool {
	for _, s := range f.skip {
		if name == s {
			return true
		}
	}
	return false
}

func (f *LocalFeed) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && f.skipped(d.Name()) {
			return filepath.SkipDir
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.dirs[p] {
			return nil
		}
		if err := f.watcher.Add(p); err != nil {
			return err
		}
		f.dirs[p] = true
		return nil
	})
}

func (f *LocalFeed) loop() {
	defer f.wg.Done()
	for {
		select {
		case <-f.closeCh:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handle(ev)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("local feed watch error", zap.String("root", f.root), zap.Error(err))
		}
	}
}

func (f *LocalFeed) handle(ev fsnotify.Event) {
	if f.skipped(filepath.Base(ev.Name)) {
		return
	}
	p, ok := f.toVFS(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		dir := false
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			dir = true
			if err := f.watchTree(ev.Name); err != nil {
				logging.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
		}
		f.sink.Notify(vfs.ChangeEvent{Kind: vfs.Created, Path: p, Folder: dir})
	case ev.Has(fsnotify.Write):
		f.sink.Notify(vfs.ChangeEvent{Kind: vfs.Modified, Path: p})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		f.mu.Lock()
		dir := f.dirs[ev.Name]
		delete(f.dirs, ev.Name)
		f.mu.Unlock()
		f.sink.Notify(vfs.ChangeEvent{Kind: vfs.Deleted, Path: p, Folder: dir})
	}
}

// Close stops watching.
func (f *LocalFeed) Close() error {
	select {
	case <-f.closeCh:
		return nil
	default:
	}
	close(f.closeCh)
	f.wg.Wait()
	return f.watcher.Close()
}

// DefaultGitDebounce is how long GitDirWatcher waits for a burst of
// repository metadata writes to settle.
const DefaultGitDebounce = 200 * time.Millisecond

// GitDirWatcher reports VCS-native status changes of projects: writes to
// the index, HEAD or branch refs of a project's .git directory, such as a
// commit or checkout made outside the agent.
type GitDirWatcher struct {
	watcher  *fsnotify.Watcher
	clock    clock.Clock
	delay    time.Duration
	onChange func(project string)

	mu       sync.Mutex
	projects map[string]string // watched dir -> project
	timers   map[string]*clock.Timer
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// NewGitDirWatcher calls onChange with the project path once writes to a
// watched .git directory have been quiet for delay.
func NewGitDirWatcher(c clock.Clock, delay time.Duration, onChange func(project string)) (*GitDirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real()
	}
	if delay <= 0 {
		delay = DefaultGitDebounce
	}
	g := &GitDirWatcher{
		watcher:  w,
		clock:    c,
		delay:    delay,
		onChange: onChange,
		projects: make(map[string]string),
		timers:   make(map[string]*clock.Timer),
		closeCh:  make(chan struct{}),
	}
	g.wg.Add(1)
	go g.loop()
	return g, nil
}

// Add watches gitDir (and its refs/heads) on behalf of project.
func (g *GitDirWatcher) Add(project, gitDir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, dir := range []string{gitDir, filepath.Join(gitDir, "refs", "heads")} {
		if _, ok := g.projects[dir]; ok {
			continue
		}
		if err := g.watcher.Add(dir); err != nil {
			if dir == gitDir {
				return err
			}
			continue
		}
		g.projects[dir] = project
	}
	return nil
}

// Remove stops watching every directory of project.
func (g *GitDirWatcher) Remove(project string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for dir, p := range g.projects {
		if p == project {
			_ = g.watcher.Remove(dir)
			delete(g.projects, dir)
		}
	}
	if t, ok := g.timers[project]; ok {
		t.Stop()
		delete(g.timers, project)
	}
}

// Watching reports whether any directory of project is watched.
func (g *GitDirWatcher) Watching(project string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.projects {
		if p == project {
			return true
		}
	}
	return false
}

func (g *GitDirWatcher) loop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.closeCh:
			return
		case ev, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			g.handle(ev)
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("git dir watch error", zap.Error(err))
		}
	}
}

func relevantGitFile(name string) bool {
	switch filepath.Base(name) {
	case "index", "HEAD", "ORIG_HEAD", "MERGE_HEAD", "packed-refs":
		return true
	}
	return filepath.Base(filepath.Dir(name)) == "heads"
}

func (g *GitDirWatcher) handle(ev fsnotify.Event) {
	if !relevantGitFile(ev.Name) {
		return
	}
	g.mu.Lock()
	project, ok := g.projects[filepath.Dir(ev.Name)]
	g.mu.Unlock()
	if ok {
		g.Trigger(project)
	}
}

// Trigger schedules a change report for project, restarting its debounce
// window.
func (g *GitDirWatcher) Trigger(project string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[project]; ok {
		t.Stop()
	}
	var t *clock.Timer
	t = g.clock.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if g.timers[project] != t {
			g.mu.Unlock()
			return
		}
		delete(g.timers, project)
		g.mu.Unlock()
		g.onChange(project)
	})
	g.timers[project] = t
}

// Close stops watching and cancels pending reports.
func (g *GitDirWatcher) Close() error {
	select {
	case <-g.closeCh:
		return nil
	default:
	}
	close(g.closeCh)
	g.wg.Wait()
	g.mu.Lock()
	for p, t := range g.timers {
		t.Stop()
		delete(g.timers, p)
	}
	g.mu.Unlock()
	return g.watcher.Close()
}
