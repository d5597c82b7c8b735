// Package importer fills a project folder from an external source such as
// a zip archive or a git repository, reporting progress line by line.
package importer

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// Source describes where project content comes from.
type Source struct {
	Type       string            `json:"type"`
	Location   string            `json:"location"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Param returns the named parameter or def.
func (s Source) Param(name, def string) string {
	if v, ok := s.Parameters[name]; ok && v != "" {
		return v
	}
	return def
}

// BoolParam returns the named parameter parsed as a bool, or def.
func (s Source) BoolParam(name string, def bool) bool {
	if b, err := strconv.ParseBool(s.Param(name, "")); err == nil {
		return b
	}
	return def
}

// Importer writes the content of a source into a folder.
type Importer interface {
	// Type is the Source.Type this importer serves.
	Type() string
	Import(ctx context.Context, base *entry.FolderEntry, src Source, out LineConsumer) error
}

// Registry maps source types to importers.
type Registry struct {
	mu        sync.RWMutex
	importers map[string]Importer
}

// NewRegistry returns a registry holding imps.
func NewRegistry(imps ...Importer) *Registry {
	r := &Registry{importers: make(map[string]Importer)}
	for _, imp := range imps {
		r.Register(imp)
	}
	return r
}

// Register adds imp, replacing any importer of the same type.
func (r *Registry) Register(imp Importer) {
	r.mu.Lock()
	r.importers[imp.Type()] = imp
	r.mu.Unlock()
}

// Get returns the importer for a source type.
func (r *Registry) Get(sourceType string) (Importer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	imp, ok := r.importers[sourceType]
	if !ok {
		return nil, apperr.NotFoundf("no importer for source type %q", sourceType)
	}
	return imp, nil
}

// Types lists the registered source types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.importers))
	for t := range r.importers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
