package vfs

import (
	"path"
	"strings"
)

// Root is the path of the workspace root folder.
const Root = "/"

// Clean normalizes p to an absolute slash-separated path without a
// trailing slash.
func Clean(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}

// Join joins a parent path and a relative path.
func Join(parent, rel string) string {
	return Clean(parent + "/" + rel)
}

// Parent returns the parent path of p. The parent of Root is Root.
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last element of p, or "" for Root.
func Base(p string) string {
	p = Clean(p)
	if p == Root {
		return ""
	}
	return path.Base(p)
}

// Segments splits a relative or absolute path into its non-empty elements.
func Segments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

// IsAncestor reports whether ancestor is a strict ancestor of p.
func IsAncestor(ancestor, p string) bool {
	ancestor, p = Clean(ancestor), Clean(p)
	if ancestor == p {
		return false
	}
	if ancestor == Root {
		return true
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Rebase moves p from under oldPrefix to under newPrefix.
func Rebase(p, oldPrefix, newPrefix string) string {
	p, oldPrefix = Clean(p), Clean(oldPrefix)
	if p == oldPrefix {
		return Clean(newPrefix)
	}
	return Join(newPrefix, strings.TrimPrefix(p, oldPrefix+"/"))
}

// ValidName reports whether name can be used as a single path element.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\")
}
