package watcher

import (
	"path"
	"strings"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Matcher selects the workspace paths a subscription receives.
type Matcher func(p string) bool

// All matches every path.
func All() Matcher { return func(string) bool { return true } }

// Under matches root and every path below it.
func Under(root string) Matcher {
	root = vfs.Clean(root)
	return func(p string) bool {
		p = vfs.Clean(p)
		return p == root || vfs.IsAncestor(root, p)
	}
}

// Glob matches paths whose base name matches pattern (path.Match syntax).
func Glob(pattern string) Matcher {
	return func(p string) bool {
		ok, _ := path.Match(pattern, vfs.Base(p))
		return ok
	}
}

// ExcludeSegments rejects paths with any segment in names, such as VCS
// metadata folders.
func ExcludeSegments(names ...string) Matcher {
	return func(p string) bool {
		for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
			for _, n := range names {
				if seg == n {
					return false
				}
			}
		}
		return true
	}
}

// And matches when every matcher does.
func And(ms ...Matcher) Matcher {
	return func(p string) bool {
		for _, m := range ms {
			if !m(p) {
				return false
			}
		}
		return true
	}
}
