// Package vcs keeps a per-project cache of version control status that
// stays coherent with workspace file changes and VCS-native events.
package vcs

import (
	"context"
	"sort"
	"strings"
)

// VcsStatus classifies a single path.
type VcsStatus string

const (
	Added       VcsStatus = "ADDED"
	Modified    VcsStatus = "MODIFIED"
	Untracked   VcsStatus = "UNTRACKED"
	NotModified VcsStatus = "NOT_MODIFIED"
)

// Status is the working tree status of one repository. Paths are relative
// to the repository root.
type Status struct {
	Branch           string   `json:"branch"`
	Clean            bool     `json:"clean"`
	Added            []string `json:"added"`
	Changed          []string `json:"changed"`
	Modified         []string `json:"modified"`
	Untracked        []string `json:"untracked"`
	UntrackedFolders []string `json:"untrackedFolders"`
	Missing          []string `json:"missing"`
	Removed          []string `json:"removed"`
	Conflicting      []string `json:"conflicting"`
}

func (s *Status) buckets() []*[]string {
	return []*[]string{
		&s.Added, &s.Changed, &s.Modified, &s.Untracked,
		&s.UntrackedFolders, &s.Missing, &s.Removed, &s.Conflicting,
	}
}

// Clone returns a deep copy of s.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	out := &Status{Branch: s.Branch, Clean: s.Clean}
	src, dst := s.buckets(), out.buckets()
	for i := range src {
		*dst[i] = append([]string(nil), (*src[i])...)
	}
	return out
}

// IsEmpty reports whether no bucket holds a path.
func (s *Status) IsEmpty() bool {
	for _, b := range s.buckets() {
		if len(*b) > 0 {
			return false
		}
	}
	return true
}

// merge drops every entry at or below one of paths and appends the
// buckets of delta.
func (s *Status) merge(delta *Status, paths []string) {
	dst, src := s.buckets(), delta.buckets()
	for i := range dst {
		kept := (*dst[i])[:0]
		for _, p := range *dst[i] {
			if !coveredBy(p, paths) {
				kept = append(kept, p)
			}
		}
		*dst[i] = appendUnique(kept, *src[i])
	}
	if delta.Branch != "" {
		s.Branch = delta.Branch
	}
	s.Clean = s.IsEmpty()
}

func coveredBy(p string, paths []string) bool {
	for _, q := range paths {
		q = strings.Trim(q, "/")
		if q == "" || p == q || strings.HasPrefix(p, q+"/") {
			return true
		}
	}
	return false
}

func appendUnique(list, add []string) []string {
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		seen[p] = true
	}
	for _, p := range add {
		if !seen[p] {
			seen[p] = true
			list = append(list, p)
		}
	}
	return list
}

func contains(list []string, p string) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

// Classify returns the status of path in s. Untracked wins over added,
// added over modified or changed; anything else is not modified.
func Classify(s *Status, path string) VcsStatus {
	path = strings.Trim(path, "/")
	switch {
	case s == nil:
		return NotModified
	case contains(s.Untracked, path) || underAny(path, s.UntrackedFolders):
		return Untracked
	case contains(s.Added, path):
		return Added
	case contains(s.Modified, path) || contains(s.Changed, path):
		return Modified
	default:
		return NotModified
	}
}

func underAny(p string, folders []string) bool {
	for _, f := range folders {
		f = strings.Trim(f, "/")
		if p == f || strings.HasPrefix(p, f+"/") {
			return true
		}
	}
	return false
}

// Sort orders every bucket lexically.
func (s *Status) Sort() {
	for _, b := range s.buckets() {
		sort.Strings(*b)
	}
}

// Connection is the view of a repository the cache consumes.
type Connection interface {
	// Status returns the status of paths, or of the whole repository when
	// paths is empty.
	Status(ctx context.Context, paths []string) (*Status, error)
	CurrentBranch(ctx context.Context) (string, error)
	IsInsideWorkTree(ctx context.Context) (bool, error)
}

// ConnectionFactory opens a Connection for the repository rooted at a
// project path. Request credentials travel in ctx.
type ConnectionFactory interface {
	Connect(ctx context.Context, project string) (Connection, error)
}

// FactoryFunc adapts a function to ConnectionFactory.
type FactoryFunc func(ctx context.Context, project string) (Connection, error)

func (f FactoryFunc) Connect(ctx context.Context, project string) (Connection, error) {
	return f(ctx, project)
}
