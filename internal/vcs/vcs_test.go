package vcs

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	storagememory "github.com/fruitsalade/fruitsalade/wsagent/internal/storage/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/watcher"
)

type fakeRepo struct {
	mu     sync.Mutex
	calls  [][]string
	result func(paths []string) *Status
	err    error
}

func (r *fakeRepo) Status(_ context.Context, paths []string) (*Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), paths...))
	if r.err != nil {
		return nil, r.err
	}
	return r.result(paths).Clone(), nil
}

func (r *fakeRepo) CurrentBranch(context.Context) (string, error)  { return "main", nil }
func (r *fakeRepo) IsInsideWorkTree(context.Context) (bool, error) { return true, nil }

func (r *fakeRepo) callLog() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

type fixture struct {
	fsys  *vfs.FileSystem
	repos map[string]*fakeRepo
	cache *StatusCache
}

func newFixture(t *testing.T, projects ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	fx := &fixture{
		fsys:  memory.NewFileSystem(storagememory.New(), memory.Options{}),
		repos: make(map[string]*fakeRepo),
	}
	root, err := fx.fsys.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range projects {
		dir, err := root.CreateFolder(ctx, strings.TrimPrefix(p, "/"))
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
			if _, err := dir.CreateFile(ctx, name, []byte(name)); err != nil {
				t.Fatal(err)
			}
		}
		fx.repos[p] = &fakeRepo{result: func([]string) *Status {
			return &Status{Branch: "main", Modified: []string{"a.txt", "b.txt"}, Untracked: []string{"c.txt"}}
		}}
	}
	fx.cache = NewStatusCache(fx.fsys, FactoryFunc(func(_ context.Context, project string) (Connection, error) {
		r, ok := fx.repos[project]
		if !ok {
			return nil, errors.New("no repository")
		}
		return r, nil
	}))
	return fx
}

func (fx *fixture) touch(t *testing.T, p string) {
	t.Helper()
	f, err := fx.fsys.Get(context.Background(), p)
	if err != nil || f == nil {
		t.Fatalf("Get(%s) = %v, %v", p, f, err)
	}
	if err := f.UpdateContent(context.Background(), []byte("touched")); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyPriority(t *testing.T) {
	st := &Status{
		Added:            []string{"both.txt", "added.txt"},
		Untracked:        []string{"both.txt"},
		Modified:         []string{"mod.txt", "added.txt"},
		Changed:          []string{"staged.txt"},
		UntrackedFolders: []string{"gen"},
	}
	tests := []struct {
		path string
		want VcsStatus
	}{
		{"both.txt", Untracked},
		{"added.txt", Added},
		{"mod.txt", Modified},
		{"staged.txt", Modified},
		{"gen/x/y.txt", Untracked},
		{"/other.txt", NotModified},
	}
	for _, tt := range tests {
		if got := Classify(st, tt.path); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestGetStatusHitsCacheForUnchangedPaths(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1")
	repo := fx.repos["/p1"]

	for i := 0; i < 2; i++ {
		if _, err := fx.cache.GetStatus(ctx, "/p1", []string{"a.txt", "b.txt"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(repo.callLog()); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}

	fx.touch(t, "/p1/a.txt")
	if _, err := fx.cache.GetStatus(ctx, "/p1", []string{"a.txt", "b.txt"}); err != nil {
		t.Fatal(err)
	}
	if n := len(repo.callLog()); n != 2 {
		t.Fatalf("modification time change not detected: %d calls", n)
	}
}

func TestGetStatusDetectsAppearance(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1")
	repo := fx.repos["/p1"]

	if _, err := fx.cache.GetStatus(ctx, "/p1", []string{"new.txt"}); err != nil {
		t.Fatal(err)
	}
	p1, _ := fx.fsys.Get(ctx, "/p1")
	if _, err := p1.CreateFile(ctx, "new.txt", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.cache.GetStatus(ctx, "/p1", []string{"new.txt"}); err != nil {
		t.Fatal(err)
	}
	if n := len(repo.callLog()); n != 2 {
		t.Fatalf("appearance not detected: %d calls", n)
	}
}

func TestGetStatusMergesDelta(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1")
	repo := fx.repos["/p1"]

	if _, err := fx.cache.GetStatus(ctx, "/p1", nil); err != nil {
		t.Fatal(err)
	}
	repo.result = func(paths []string) *Status {
		return &Status{Branch: "main", Added: []string{"a.txt"}}
	}
	fx.cache.MarkDirty("/p1", "a.txt")

	st, err := fx.cache.GetStatus(ctx, "/p1", []string{"a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(st.Modified, []string{"b.txt"}) ||
		!reflect.DeepEqual(st.Added, []string{"a.txt"}) ||
		!reflect.DeepEqual(st.Untracked, []string{"c.txt"}) {
		t.Errorf("merged status = %+v", st)
	}
	calls := repo.callLog()
	if got := calls[len(calls)-1]; !reflect.DeepEqual(got, []string{"a.txt"}) {
		t.Errorf("delta query paths = %v", got)
	}

	statuses, err := fx.cache.GetVcsStatus(ctx, "/p1", []string{"a.txt", "b.txt", "c.txt"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]VcsStatus{"a.txt": Added, "b.txt": Modified, "c.txt": Untracked}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("GetVcsStatus = %v", statuses)
	}
}

func TestOnStatusChangedOverwrites(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1")

	if _, err := fx.cache.GetStatus(ctx, "/p1", nil); err != nil {
		t.Fatal(err)
	}
	fx.cache.MarkDirty("/p1", "a.txt")
	fx.cache.OnStatusChanged("/p1", &Status{Branch: "dev"})

	st, err := fx.cache.GetStatus(ctx, "/p1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Branch != "dev" || !st.Clean {
		t.Errorf("status = %+v", st)
	}
	if n := len(fx.repos["/p1"].callLog()); n != 1 {
		t.Errorf("overwritten snapshot should serve queries: %d calls", n)
	}
}

func TestNilStatusIsEmpty(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1", "/p2")

	fx.cache.OnStatusChanged("/p1", nil)
	if st := fx.cache.Cached("/p1"); st == nil || !st.Clean {
		t.Errorf("Cached after nil status = %+v", st)
	}

	fx.repos["/p2"].result = func([]string) *Status { return nil }
	st, err := fx.cache.GetStatus(ctx, "/p2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Clean || Classify(st, "a.txt") != NotModified {
		t.Errorf("status from nil result = %+v", st)
	}
}

func TestGetStatusSurfacesBackendError(t *testing.T) {
	fx := newFixture(t, "/p1")
	fx.repos["/p1"].err = errors.New("not a repository")

	_, err := fx.cache.GetStatus(context.Background(), "/p1", nil)
	if !apperr.IsServer(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	if _, err := fx.cache.GetStatus(context.Background(), "/unknown", nil); !apperr.IsServer(err) {
		t.Fatalf("expected server error for unknown project, got %v", err)
	}
}

func locateFirstSegment(_ context.Context, p string) (string, error) {
	segs := vfs.Segments(p)
	if len(segs) == 0 {
		return "", errors.New("root has no project")
	}
	return "/" + segs[0], nil
}

func TestDetectorRecomputesOnlyOwningProject(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1", "/p2")
	wm := watcher.NewManager()
	defer wm.Close()
	fx.fsys.AddListener(wm)

	det := NewDetector(fx.cache, locateFirstSegment)
	det.Start(ctx, wm, nil)
	defer det.Stop()

	for _, p := range []string{"/p1", "/p2"} {
		if _, err := fx.cache.GetStatus(ctx, p, nil); err != nil {
			t.Fatal(err)
		}
	}
	fx.repos["/p1"].result = func([]string) *Status { return &Status{Added: []string{"a.txt"}} }

	fx.touch(t, "/p1/a.txt")
	wm.Sync()

	p1 := fx.repos["/p1"].callLog()
	if len(p1) != 2 || !reflect.DeepEqual(p1[1], []string{"a.txt"}) {
		t.Fatalf("p1 calls = %v", p1)
	}
	if n := len(fx.repos["/p2"].callLog()); n != 1 {
		t.Fatalf("p2 backend called %d times", n)
	}

	st, err := fx.cache.GetStatus(ctx, "/p1", []string{"a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if Classify(st, "a.txt") != Added || Classify(st, "b.txt") != Modified {
		t.Errorf("status after precompute = %+v", st)
	}
	if n := len(fx.repos["/p1"].callLog()); n != 2 {
		t.Errorf("query after precompute should hit: %d calls", n)
	}
}

func TestDetectorHandlesBusEvents(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, "/p1", "/p2")
	wm := watcher.NewManager()
	defer wm.Close()
	bus := events.NewBroadcaster()

	det := NewDetector(fx.cache, locateFirstSegment)
	det.Start(ctx, wm, bus)
	defer det.Stop()

	if _, err := fx.cache.GetStatus(ctx, "/p1", nil); err != nil {
		t.Fatal(err)
	}
	fx.repos["/p2"].result = func([]string) *Status { return &Status{Branch: "feature"} }

	bus.Publish(events.Event{Type: events.EventProjectDeleted, Project: "/p1"})
	bus.Publish(events.Event{Type: events.EventVCSStatusChanged, Project: "/p2"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := fx.cache.Cached("/p2")
		if fx.cache.Cached("/p1") == nil && st != nil && st.Branch == "feature" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bus events not applied: p1=%+v p2=%+v", fx.cache.Cached("/p1"), fx.cache.Cached("/p2"))
}
