package importer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	storagememory "github.com/fruitsalade/fruitsalade/wsagent/internal/storage/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/memory"
)

type broadcasts struct {
	mu    sync.Mutex
	lines []string
	at    []time.Duration
	start time.Time
	clock clock.Clock
}

func (b *broadcasts) record(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	b.at = append(b.at, b.clock.Now().Sub(b.start))
}

func (b *broadcasts) get() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

func TestRateLimitedCoalescesWithinWindow(t *testing.T) {
	start := time.Unix(1000, 0)
	fc := clock.Fake(start)
	b := &broadcasts{start: start, clock: fc}
	c := NewRateLimited(fc, 300*time.Millisecond, b.record)

	c.WriteLine("line1")
	fc.Advance(30 * time.Millisecond)
	c.WriteLine("line1.1")
	c.WriteLine("line1.2")

	if got := b.get(); len(got) != 1 || got[0] != "line1" {
		t.Fatalf("after first window opened: %v", got)
	}

	fc.Advance(270 * time.Millisecond)
	got := b.get()
	if len(got) != 2 || got[1] != "line1.2" {
		t.Fatalf("window broadcast = %v, want latest pending line1.2", got)
	}
	if b.at[0] != 0 || b.at[1] != 300*time.Millisecond {
		t.Errorf("broadcast times = %v", b.at)
	}
	if fc.Pending() != 0 {
		t.Errorf("no timer should remain, %d pending", fc.Pending())
	}
}

func TestRateLimitedBroadcastsImmediatelyAfterIdle(t *testing.T) {
	start := time.Unix(1000, 0)
	fc := clock.Fake(start)
	b := &broadcasts{start: start, clock: fc}
	c := NewRateLimited(fc, 300*time.Millisecond, b.record)

	c.WriteLine("a")
	fc.Advance(time.Second)
	c.WriteLine("b")
	if got := b.get(); strings.Join(got, ",") != "a,b" {
		t.Fatalf("got %v", got)
	}

	fc.Advance(100 * time.Millisecond)
	c.WriteLine("c")
	c.Close()
	if got := b.get(); strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("Close should flush pending line, got %v", got)
	}
	c.WriteLine("d")
	fc.Advance(time.Second)
	if got := b.get(); len(got) != 3 {
		t.Fatalf("line after Close was broadcast: %v", got)
	}
}

func newFolder(t *testing.T, p string) *entry.FolderEntry {
	t.Helper()
	ctx := context.Background()
	root, err := entry.Root(ctx, memory.NewFileSystem(storagememory.New(), memory.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	f, err := root.CreateFolder(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readFile(t *testing.T, f *entry.FolderEntry, rel string) string {
	t.Helper()
	fe, err := f.GetChildFile(context.Background(), rel)
	if err != nil || fe == nil {
		t.Fatalf("GetChildFile(%s) = %v, %v", rel, fe, err)
	}
	data, err := fe.ContentAsBytes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestZipImporterSources(t *testing.T) {
	ctx := context.Background()
	archive := buildZip(t, map[string]string{"app/README": "hello", "app/src/main.go": "package main"})

	path := filepath.Join(t.TempDir(), "app.zip")
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	blobs := storagememory.New()
	if err := blobs.PutObject(ctx, "imports/app.zip", bytes.NewReader(archive), int64(len(archive))); err != nil {
		t.Fatal(err)
	}

	imp := ZipImporter{Blobs: blobs}
	for _, loc := range []string{path, "file://" + path, StoragePrefix + "imports/app.zip"} {
		base := newFolder(t, "proj")
		var lines []string
		src := Source{Type: "zip", Location: loc, Parameters: map[string]string{"skipFirstLevel": "true"}}
		if err := imp.Import(ctx, base, src, LineConsumerFunc(func(l string) { lines = append(lines, l) })); err != nil {
			t.Fatalf("%s: %v", loc, err)
		}
		if got := readFile(t, base, "src/main.go"); got != "package main" {
			t.Errorf("%s: main.go = %q", loc, got)
		}
		if len(lines) == 0 {
			t.Errorf("%s: no progress lines", loc)
		}
	}

	_, err := ZipImporter{}.open(ctx, StoragePrefix+"x")
	if !apperr.IsServer(err) {
		t.Errorf("storage location without backend: %v", err)
	}
	if _, err := imp.open(ctx, StoragePrefix+"missing.zip"); !apperr.IsNotFound(err) {
		t.Errorf("missing key: %v", err)
	}
	if _, err := imp.open(ctx, filepath.Join(t.TempDir(), "none.zip")); !apperr.IsNotFound(err) {
		t.Errorf("missing file: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(ZipImporter{}, GitImporter{})
	if got := strings.Join(r.Types(), ","); got != "git,zip" {
		t.Errorf("Types = %s", got)
	}
	if _, err := r.Get("svn"); !apperr.IsNotFound(err) {
		t.Errorf("unknown type: %v", err)
	}
	if imp, err := r.Get("zip"); err != nil || imp.Type() != "zip" {
		t.Errorf("Get(zip) = %v, %v", imp, err)
	}
}

func TestCopyDirOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "f.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	base := newFolder(t, "p")
	sub, err := base.CreateFolder(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sub.CreateFile(ctx, "f.txt", []byte("old")); err != nil {
		t.Fatal(err)
	}

	if err := CopyDir(ctx, dir, base); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, base, "a/b/f.txt"); got != "new" {
		t.Errorf("f.txt = %q", got)
	}
}

func TestGitImporterClonesLocalRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", repo}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.MkdirAll(filepath.Join(repo, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "sub", "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("-c", "user.name=t", "-c", "user.email=t@example.com", "commit", "-q", "-m", "init")

	base := newFolder(t, "cloned")
	err := GitImporter{TempDir: t.TempDir()}.Import(ctx, base, Source{Type: "git", Location: repo}, Discard)
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, base, "sub/x.txt"); got != "x" {
		t.Errorf("x.txt = %q", got)
	}
	if g, _ := base.GetChildFolder(ctx, ".git"); g == nil {
		t.Error("expected .git to be imported")
	}

	kept := newFolder(t, "kept")
	src := Source{Type: "git", Location: repo, Parameters: map[string]string{"keepDir": "sub"}}
	if err := (GitImporter{}).Import(ctx, kept, src, Discard); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, kept, "x.txt"); got != "x" {
		t.Errorf("keepDir x.txt = %q", got)
	}

	bad := newFolder(t, "bad")
	if err := (GitImporter{}).Import(ctx, bad, Source{Type: "git", Location: filepath.Join(repo, "nope")}, Discard); !apperr.IsServer(err) {
		t.Errorf("clone of missing repository: %v", err)
	}
}
