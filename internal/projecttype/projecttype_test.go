package projecttype

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	storagememory "github.com/fruitsalade/fruitsalade/wsagent/internal/storage/memory"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs/memory"
)

func newFolder(t *testing.T, name string) *entry.FolderEntry {
	t.Helper()
	ctx := context.Background()
	root, err := entry.Root(ctx, memory.NewFileSystem(storagememory.New(), memory.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	f, err := root.CreateFolder(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.RegisterAll(
		NewTypeDef("java", "Java").Primaryable().Constant("language", "", "java").Build(),
		NewTypeDef("maven", "Maven").Primaryable().Parents("java").Variable("artifactId", "", false).Build(),
		NewTypeDef("docker", "Docker").Mixable().Constant("runtime", "", "docker").Build(),
		NewTypeDef("detected", "Detected").Mixable().Transient().
			Provided("detected", "", true, MarkerFileProvider(".detected", "yes")).Build(),
	)
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return r
}

func TestRegisterErrors(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name string
		def  *TypeDef
		is   func(error) bool
	}{
		{"duplicate id", NewTypeDef("java", "again").Build(), apperr.IsConflict},
		{"empty id", NewTypeDef("", "x").Build(), apperr.IsServer},
		{"unnamed attribute", NewTypeDef("x", "x").Constant("", "").Build(), apperr.IsServer},
		{"unknown parent", NewTypeDef("y", "y").Parents("nope").Build(), apperr.IsNotFound},
		{"inherited clash", NewTypeDef("z", "z").Parents("java").Constant("language", "", "go").Build(), apperr.IsConstraint},
	}
	for _, tt := range tests {
		if err := r.Register(tt.def); !tt.is(err) {
			t.Errorf("%s: got %v", tt.name, err)
		}
	}
	if _, err := r.Get("missing"); !apperr.IsNotFound(err) {
		t.Errorf("Get missing: %v", err)
	}
	if !r.Has(BlankTypeID) {
		t.Error("blank type should always be registered")
	}
}

func TestInheritanceAndSorted(t *testing.T) {
	r := testRegistry(t)
	maven, _ := r.Get("maven")
	if maven.Attribute("language") == nil {
		t.Fatal("maven should inherit language from java")
	}
	if !maven.IsTypeOf("java") || maven.IsTypeOf("docker") {
		t.Errorf("IsTypeOf wrong for %v", maven.Ancestors())
	}

	sorted := r.Sorted()
	idx := map[string]int{}
	for i, d := range sorted {
		idx[d.ID] = i
	}
	if idx["maven"] > idx["java"] {
		t.Errorf("subtype must come before its parent: %v", idx)
	}
}

func TestNewProjectTypesResolution(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name       string
		primary    string
		mixins     []string
		is         func(error) bool
		wantMixins []string
	}{
		{"primary only", "maven", nil, nil, nil},
		{"empty primary is blank", "", nil, nil, nil},
		{"mixin", "maven", []string{"docker"}, nil, []string{"docker"}},
		{"primary repeated as mixin ignored", "maven", []string{"maven", "docker"}, nil, []string{"docker"}},
		{"another primary as mixin", "maven", []string{"java"}, apperr.IsConstraint, nil},
		{"unregistered mixin", "maven", []string{"ghost"}, apperr.IsNotFound, nil},
		{"transient mixin excluded", "maven", []string{"detected", "docker"}, nil, []string{"docker"}},
		{"unknown primary", "ghost", nil, apperr.IsNotFound, nil},
		{"non primaryable primary", "docker", nil, apperr.IsConstraint, nil},
	}
	for _, tt := range tests {
		pt, err := NewProjectTypes("/p", tt.primary, tt.mixins, r)
		if tt.is != nil {
			if !tt.is(err) {
				t.Errorf("%s: got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := pt.MixinIDs(); !reflect.DeepEqual(got, tt.wantMixins) {
			t.Errorf("%s: mixins = %v, want %v", tt.name, got, tt.wantMixins)
		}
		if _, ok := pt.Mixins()[pt.Primary().ID]; ok {
			t.Errorf("%s: primary in mixin map", tt.name)
		}
	}

	pt, _ := NewProjectTypes("/p", "maven", []string{"detected"}, r)
	if _, ok := pt.Transient()["detected"]; !ok {
		t.Error("transient type should stay queryable")
	}
	if !pt.Has("java") {
		t.Error("Has should follow inheritance")
	}
}

func TestAttributeClashBetweenTypes(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register(NewTypeDef("lang", "Lang").Mixable().Constant("language", "", "go").Build()); err != nil {
		t.Fatal(err)
	}
	if _, err := NewProjectTypes("/p", "java", []string{"lang"}, r); !apperr.IsConstraint(err) {
		t.Errorf("clash: %v", err)
	}
}

func TestEstimateRequiredMarker(t *testing.T) {
	ctx := context.Background()
	folder := newFolder(t, "candidate")
	def := NewTypeDef("checked-type", "Checked").Primaryable().
		Provided("calculated_attribute", "", true, MarkerFileProvider("check", "checked")).
		Provided("optional", "", false, FileContentProvider(".optional")).
		Build()

	if _, err := Estimate(ctx, folder, def); !apperr.IsConflict(err) {
		t.Fatalf("estimate without marker: %v", err)
	}

	if _, err := folder.CreateFile(ctx, "check", nil); err != nil {
		t.Fatal(err)
	}
	got, err := Estimate(ctx, folder, def)
	if err != nil {
		t.Fatalf("estimate with marker: %v", err)
	}
	want := map[string][]string{"calculated_attribute": {"checked"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

func TestEstimateAll(t *testing.T) {
	ctx := context.Background()
	r := testRegistry(t)
	folder := newFolder(t, "p")
	if _, err := folder.CreateFile(ctx, ".detected", nil); err != nil {
		t.Fatal(err)
	}

	ests := EstimateAll(ctx, folder, r, true)
	if len(ests) != 1 || ests[0].Type != "detected" || !ests[0].Matched {
		t.Errorf("EstimateAll = %+v", ests)
	}

	pt, _ := NewProjectTypes("/p", "java", nil, r)
	pt.AddTransient(ctx, folder, r)
	if _, ok := pt.Transient()["detected"]; !ok {
		t.Error("AddTransient should detect the marker type")
	}
}

func TestProviders(t *testing.T) {
	ctx := context.Background()
	folder := newFolder(t, "p")

	ro := MarkerFileProvider("x").NewInstance(folder)
	if err := ro.SetValues(ctx, "a", []string{"v"}); !errors.Is(err, ErrReadOnlyProvider) || !apperr.IsValueStorage(err) {
		t.Errorf("read-only SetValues: %v", err)
	}

	fc := FileContentProvider("meta/version").NewInstance(folder)
	if _, err := fc.Values(ctx, "version"); !apperr.IsValueStorage(err) {
		t.Errorf("missing file: %v", err)
	}
	if err := fc.SetValues(ctx, "version", []string{"1.0", "2.0"}); err != nil {
		t.Fatalf("SetValues: %v", err)
	}
	if err := fc.SetValues(ctx, "version", []string{"3.0"}); err != nil {
		t.Fatalf("SetValues update: %v", err)
	}
	got, err := fc.Values(ctx, "version")
	if err != nil || !reflect.DeepEqual(got, []string{"3.0"}) {
		t.Errorf("Values = %v, %v", got, err)
	}
}

func TestParseYAML(t *testing.T) {
	doc := `
types:
  - id: node
    displayName: Node.js
    primaryable: true
    attributes:
      - name: language
        value: [javascript]
      - name: packageJson
        marker: package.json
        values: ["true"]
        required: true
      - name: description
  - id: lint
    mixable: true
    persisted: false
    parents: [node]
`
	defs, err := ParseYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d defs", len(defs))
	}
	node := defs[0]
	if !node.Primaryable || node.DisplayName != "Node.js" {
		t.Errorf("node = %+v", node)
	}
	if a := node.Attribute("packageJson"); a == nil || !a.IsProvided() || !a.Required {
		t.Errorf("packageJson = %+v", a)
	}
	if a := node.Attribute("description"); a == nil || !a.IsStored() {
		t.Errorf("description = %+v", a)
	}
	if defs[1].Persisted || defs[1].DisplayName != "lint" {
		t.Errorf("lint = %+v", defs[1])
	}

	r := NewRegistry()
	if err := r.RegisterAll(defs...); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	if _, err := ParseYAML(strings.NewReader("types:\n  - id: x\n    bogus: 1\n")); err == nil {
		t.Error("unknown fields should be rejected")
	}
	bad := "types:\n  - id: x\n    attributes:\n      - name: a\n        value: [v]\n        file: f\n"
	if _, err := ParseYAML(strings.NewReader(bad)); err == nil {
		t.Error("exclusive attribute sources should be rejected")
	}
}
