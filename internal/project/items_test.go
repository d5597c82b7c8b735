package project

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/handler"
)

func names(refs []*ItemReference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}

func TestGetItem(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	if _, err := fx.m.CreateProject(ctx, &Config{Path: "/app", Type: "java"}, nil); err != nil {
		t.Fatal(err)
	}
	fx.write(t, "/app/src", "Main.java", "class Main {}")
	err := fx.handlers.Register(handler.GetItemFunc{Type: "java", Fn: func(_ context.Context, item entry.Entry, attrs map[string][]string) error {
		attrs["seen"] = []string{item.Name()}
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}

	ref, err := fx.m.GetItem(ctx, "/app")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if ref.Type != ItemProject || ref.Project != "/app" {
		t.Errorf("project item = %+v", ref)
	}
	want := map[string][]string{"language": {"java"}, "seen": {"app"}}
	if !reflect.DeepEqual(ref.Attributes, want) {
		t.Errorf("attributes = %v, want %v", ref.Attributes, want)
	}

	ref, err = fx.m.GetItem(ctx, "/app/src/Main.java")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Type != ItemFile || ref.Project != "/app" || ref.Size != int64(len("class Main {}")) {
		t.Errorf("file item = %+v", ref)
	}
	if !reflect.DeepEqual(ref.Attributes["seen"], []string{"Main.java"}) {
		t.Errorf("handler did not see file: %v", ref.Attributes)
	}

	if _, err := fx.m.GetItem(ctx, "/app/nope"); !apperr.IsNotFound(err) {
		t.Errorf("missing item: %v", err)
	}
}

func TestChildrenAndTreeHideMetadata(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	if _, err := fx.m.CreateProject(ctx, &Config{Path: "/app", Type: "java"}, nil); err != nil {
		t.Fatal(err)
	}
	fx.write(t, "/app/src", "Main.java", "")
	fx.write(t, "/app", "README", "")

	children, err := fx.m.GetChildren(ctx, "/app")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(children), []string{"/app/README", "/app/src"}; !reflect.DeepEqual(got, want) {
		t.Errorf("children = %v, want %v", got, want)
	}

	tree, err := fx.m.GetTree(ctx, "/", -1, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Node.Type != ItemProject {
		t.Fatalf("root tree = %+v", tree)
	}
	app := tree.Children[0]
	if len(app.Children) != 2 || len(app.Children[1].Children) != 1 {
		t.Errorf("app tree has %d children", len(app.Children))
	}

	tree, err = fx.m.GetTree(ctx, "/app", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Node.Path != "/app/src" || len(tree.Children[0].Children) != 0 {
		t.Errorf("folders-only tree of depth 1 = %+v", tree.Children)
	}

	if _, err := fx.m.GetChildren(ctx, "/app/README"); !apperr.IsNotFound(err) {
		t.Errorf("children of a file: %v", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	if _, err := fx.m.CreateProject(ctx, &Config{Path: "/app", Type: "java"}, nil); err != nil {
		t.Fatal(err)
	}
	fx.write(t, "/app", "a.txt", "hello world")
	fx.write(t, "/app", "b.go", "hello")
	fx.write(t, "/app/sub", "c.txt", "bye")

	tests := []struct {
		name string
		opts SearchOptions
		want []string
	}{
		{"by name", SearchOptions{Name: "*.txt"}, []string{"/app/a.txt", "/app/sub/c.txt"}},
		{"by text", SearchOptions{Text: "hello"}, []string{"/app/a.txt", "/app/b.go"}},
		{"paged", SearchOptions{Name: "*.txt", Skip: 1, MaxItems: 1}, []string{"/app/sub/c.txt"}},
		{"metadata hidden", SearchOptions{Name: "*.json"}, []string{}},
	}
	for _, tt := range tests {
		got, err := fx.m.Search(ctx, "/app", tt.opts)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !reflect.DeepEqual(names(got), tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, names(got), tt.want)
		}
	}

	if _, err := fx.m.Search(ctx, "/app", SearchOptions{Name: "["}); !apperr.IsConflict(err) {
		t.Errorf("bad pattern: %v", err)
	}
}

func TestZipExportRestoresProject(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	if _, err := fx.m.CreateProject(ctx, &Config{Path: "/app", Type: "java"}, nil); err != nil {
		t.Fatal(err)
	}
	fx.write(t, "/app", "a.txt", "payload")

	var buf bytes.Buffer
	if err := fx.m.ExportZip(ctx, "/app", &buf); err != nil {
		t.Fatalf("ExportZip: %v", err)
	}
	fx.mkdir(t, "/restored")
	if err := fx.m.ImportZip(ctx, "/restored", &buf, false); err != nil {
		t.Fatalf("ImportZip: %v", err)
	}

	f, err := entry.LookupFolder(ctx, fx.fsys, "/restored")
	if err != nil {
		t.Fatal(err)
	}
	file, err := f.GetChildFile(ctx, "a.txt")
	if err != nil || file == nil {
		t.Fatalf("a.txt = %v, %v", file, err)
	}
	proj, err := fx.m.GetProject(ctx, "/restored")
	if err != nil {
		t.Fatal(err)
	}
	if proj.Type != "java" || len(proj.Problems) != 0 || proj.Path != "/restored" {
		t.Errorf("restored project = %+v", proj)
	}

	if err := fx.m.ExportZip(ctx, "/missing", &buf); !apperr.IsNotFound(err) {
		t.Errorf("export of missing folder: %v", err)
	}
}

func TestFolderConfigStore(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.mkdir(t, "/one")
	fx.mkdir(t, "/two/nested")
	store := NewFolderConfigStore(fx.fsys)

	if cfg, err := store.Load(ctx, "/one"); err != nil || cfg != nil {
		t.Fatalf("Load before save = %v, %v", cfg, err)
	}
	for _, p := range []string{"/one", "/two/nested"} {
		cfg := &Config{Path: p, Type: "java", Modules: []*Config{{Path: p + "/m", Type: "java"}}}
		if err := store.Save(ctx, cfg); err != nil {
			t.Fatalf("Save(%s): %v", p, err)
		}
	}
	if err := store.Save(ctx, &Config{Path: "/absent"}); !apperr.IsNotFound(err) {
		t.Errorf("save into missing folder: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, c := range all {
		paths = append(paths, c.Path)
	}
	if want := []string{"/one", "/two/nested"}; !reflect.DeepEqual(paths, want) {
		t.Errorf("List = %v, want %v", paths, want)
	}

	if _, err := fx.m.Move(ctx, "/one", "/two", "", false); err != nil {
		t.Fatal(err)
	}
	cfg, err := store.Load(ctx, "/two/one")
	if err != nil || cfg == nil {
		t.Fatalf("Load after move = %v, %v", cfg, err)
	}
	if cfg.Path != "/two/one" || cfg.Modules[0].Path != "/two/one/m" {
		t.Errorf("moved config = %+v", cfg)
	}

	if err := store.Delete(ctx, "/two/one"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "/two/one"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if cfg, _ := store.Load(ctx, "/two/one"); cfg != nil {
		t.Error("config still present after delete")
	}
}
