package vfs

import (
	"sort"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
)

// Permissions understood by the store.
const (
	PermRead      = "read"
	PermWrite     = "write"
	PermUpdateACL = "update_acl"
	PermRun       = "run"
	PermBuild     = "build"

	// PermAll is shorthand for every permission above.
	PermAll = "all"
)

// AllPermissions is the expansion of PermAll.
var AllPermissions = []string{PermRead, PermWrite, PermUpdateACL, PermRun, PermBuild}

// Principal identifies a user or group in an ACL entry.
type Principal struct {
	Name string             `json:"name"`
	Type auth.PrincipalType `json:"type"`
}

// User returns a user principal.
func User(name string) Principal { return Principal{Name: name, Type: auth.PrincipalUser} }

// Group returns a group principal.
func Group(name string) Principal { return Principal{Name: name, Type: auth.PrincipalGroup} }

// AccessControlEntry grants permissions to one principal.
type AccessControlEntry struct {
	Principal   Principal `json:"principal"`
	Permissions []string  `json:"permissions"`
}

// ExpandPermissions replaces PermAll with AllPermissions and removes
// duplicates, keeping the canonical order for known permissions.
func ExpandPermissions(perms []string) []string {
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		if p == PermAll {
			for _, a := range AllPermissions {
				set[a] = true
			}
			continue
		}
		if p != "" {
			set[p] = true
		}
	}

	out := make([]string, 0, len(set))
	for _, a := range AllPermissions {
		if set[a] {
			out = append(out, a)
			delete(set, a)
		}
	}
	extra := make([]string, 0, len(set))
	for p := range set {
		extra = append(extra, p)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// MergeACL applies updates to existing. Each update replaces the entry for
// its principal; an update with no permissions removes the principal.
// Principals not named in updates keep their entries. With clearExisting
// the result holds only the non-empty updates.
func MergeACL(existing, updates []AccessControlEntry, clearExisting bool) []AccessControlEntry {
	byPrincipal := make(map[Principal][]string)
	var order []Principal

	if !clearExisting {
		for _, e := range existing {
			if _, seen := byPrincipal[e.Principal]; !seen {
				order = append(order, e.Principal)
			}
			byPrincipal[e.Principal] = e.Permissions
		}
	}
	for _, u := range updates {
		perms := ExpandPermissions(u.Permissions)
		if len(perms) == 0 {
			delete(byPrincipal, u.Principal)
			continue
		}
		if _, seen := byPrincipal[u.Principal]; !seen {
			order = append(order, u.Principal)
		}
		byPrincipal[u.Principal] = perms
	}

	out := make([]AccessControlEntry, 0, len(byPrincipal))
	for _, p := range order {
		perms, ok := byPrincipal[p]
		if !ok {
			continue
		}
		out = append(out, AccessControlEntry{Principal: p, Permissions: perms})
		delete(byPrincipal, p)
	}
	return out
}

// PermissionsOf returns the permissions granted to principal p by acl.
func PermissionsOf(acl []AccessControlEntry, p Principal) []string {
	for _, e := range acl {
		if e.Principal == p {
			return append([]string(nil), e.Permissions...)
		}
	}
	return nil
}

// effectivePermissions returns what caller may do under acl. An empty acl
// grants everything, as does a nil caller.
func effectivePermissions(acl []AccessControlEntry, caller *auth.Principal) []string {
	if caller == nil || len(acl) == 0 {
		return append([]string(nil), AllPermissions...)
	}
	var granted []string
	for _, e := range acl {
		switch e.Principal.Type {
		case auth.PrincipalGroup:
			if !caller.InGroup(e.Principal.Name) {
				continue
			}
		default:
			if e.Principal.Name != caller.Name {
				continue
			}
		}
		granted = append(granted, e.Permissions...)
	}
	return ExpandPermissions(granted)
}

func hasPermission(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}
