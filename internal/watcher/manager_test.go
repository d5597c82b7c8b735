package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(prefix string) func(vfs.ChangeEvent) {
	return func(ev vfs.ChangeEvent) {
		r.mu.Lock()
		r.got = append(r.got, prefix+ev.Path)
		r.mu.Unlock()
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestManagerPreservesOrderPerSubscription(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var rec recorder
	m.Register(All(), Handlers{OnCreate: rec.add("c:"), OnModify: rec.add("m:"), OnDelete: rec.add("d:")})

	var want []string
	for i := 0; i < 50; i++ {
		p := fmt.Sprintf("/p/f%d", i)
		m.Notify(vfs.ChangeEvent{Kind: vfs.Created, Path: p})
		m.Notify(vfs.ChangeEvent{Kind: vfs.Modified, Path: p})
		m.Notify(vfs.ChangeEvent{Kind: vfs.Deleted, Path: p})
		want = append(want, "c:"+p, "m:"+p, "d:"+p)
	}
	m.Sync()

	got := rec.snapshot()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events out of order:\n got %v\nwant %v", got, want)
	}
}

func TestManagerMatcherAndUnregister(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var app, all recorder
	sub := m.Register(And(Under("/app"), ExcludeSegments(".git")), Handlers{OnModify: app.add("")})
	m.Register(nil, Handlers{OnModify: all.add("")})
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}

	for _, p := range []string{"/app/main.go", "/app/.git/index", "/other/x", "/app"} {
		m.Notify(vfs.ChangeEvent{Kind: vfs.Modified, Path: p})
	}
	m.Sync()
	if got := app.snapshot(); strings.Join(got, ",") != "/app/main.go,/app" {
		t.Errorf("matched = %v", got)
	}
	if got := all.snapshot(); len(got) != 4 {
		t.Errorf("catch-all got %v", got)
	}

	sub.Unregister()
	sub.Unregister()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatch goroutine did not exit")
	}
	m.Notify(vfs.ChangeEvent{Kind: vfs.Modified, Path: "/app/late.go"})
	m.Sync()
	if got := app.snapshot(); len(got) != 2 {
		t.Errorf("unregistered subscription still receives: %v", got)
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var rec recorder
	m.Register(All(), Handlers{OnCreate: func(ev vfs.ChangeEvent) {
		if ev.Path == "/boom" {
			panic("handler failure")
		}
		rec.add("")(ev)
	}})
	m.Notify(vfs.ChangeEvent{Kind: vfs.Created, Path: "/boom"})
	m.Notify(vfs.ChangeEvent{Kind: vfs.Created, Path: "/ok"})
	m.Sync()

	if got := rec.snapshot(); len(got) != 1 || got[0] != "/ok" {
		t.Errorf("got %v", got)
	}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"*.go", "/app/main.go", true},
		{"*.go", "/app/main.java", false},
		{"pom.xml", "/app/sub/pom.xml", true},
	}
	for _, tt := range tests {
		if got := Glob(tt.pattern)(tt.path); got != tt.want {
			t.Errorf("Glob(%q)(%q) = %v", tt.pattern, tt.path, got)
		}
	}
}

func TestGitDirWatcherDebounces(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	var mu sync.Mutex
	var changed []string
	g, err := NewGitDirWatcher(fc, 100*time.Millisecond, func(p string) {
		mu.Lock()
		changed = append(changed, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	g.Trigger("/app")
	fc.Advance(60 * time.Millisecond)
	g.Trigger("/app")
	fc.Advance(60 * time.Millisecond)
	mu.Lock()
	if len(changed) != 0 {
		t.Fatalf("fired before the window settled: %v", changed)
	}
	mu.Unlock()

	fc.Advance(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(changed) != 1 || changed[0] != "/app" {
		t.Fatalf("changed = %v", changed)
	}
}

func TestGitDirWatcherAddRemove(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		t.Fatal(err)
	}
	g, err := NewGitDirWatcher(nil, 0, func(string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	if err := g.Add("/app", gitDir); err != nil {
		t.Fatal(err)
	}
	if !g.Watching("/app") {
		t.Fatal("expected /app watched")
	}
	g.Remove("/app")
	if g.Watching("/app") {
		t.Fatal("expected /app no longer watched")
	}
	if err := g.Add("/missing", filepath.Join(dir, "nope")); err == nil {
		t.Fatal("expected error for missing git dir")
	}
}

func TestLocalFeedReportsExternalWrites(t *testing.T) {
	root := t.TempDir()
	events := make(chan vfs.ChangeEvent, 16)
	sink := vfs.ListenerFunc(func(ev vfs.ChangeEvent) { events <- ev })
	toVFS := func(p string) (string, bool) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", false
		}
		return vfs.Join(vfs.Root, filepath.ToSlash(rel)), true
	}

	feed, err := NewLocalFeed(root, toVFS, sink, ".git")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Path == "/hello.txt" && ev.Kind == vfs.Created {
				return
			}
		case <-deadline:
			t.Fatal("no create event for /hello.txt")
		}
	}
}
