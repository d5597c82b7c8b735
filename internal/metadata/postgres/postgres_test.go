package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/project"
)

func TestDecodeUsesRowPath(t *testing.T) {
	cfg, err := decode("/app", []byte(`{"name":"app","path":"/old","type":"java"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != "/app" || cfg.Type != "java" || cfg.Attributes == nil {
		t.Errorf("decoded = %+v", cfg)
	}
	if _, err := decode("/app", []byte(`{`)); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	defer s.db.ExecContext(ctx, `DELETE FROM projects WHERE path LIKE '/pgtest%'`)

	if cfg, err := s.Load(ctx, "/pgtest-a"); err != nil || cfg != nil {
		t.Fatalf("Load before save = %v, %v", cfg, err)
	}
	for _, p := range []string{"/pgtest-b", "/pgtest-a"} {
		cfg := &project.Config{Name: p[1:], Path: p, Type: "java",
			Attributes: map[string][]string{"version": {"1"}}}
		if err := s.Save(ctx, cfg); err != nil {
			t.Fatalf("Save(%s): %v", p, err)
		}
	}
	if err := s.Save(ctx, &project.Config{Path: "/pgtest-a", Type: "maven"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	cfg, err := s.Load(ctx, "/pgtest-a")
	if err != nil || cfg == nil || cfg.Type != "maven" {
		t.Fatalf("Load = %+v, %v", cfg, err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, c := range all {
		if len(c.Path) > 7 && c.Path[:7] == "/pgtest" {
			got = append(got, c.Path)
		}
	}
	if len(got) != 2 || got[0] != "/pgtest-a" || got[1] != "/pgtest-b" {
		t.Errorf("List = %v", got)
	}

	if err := s.Delete(ctx, "/pgtest-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "/pgtest-a"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}
