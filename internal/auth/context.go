package auth

import "context"

type contextKey string

const (
	principalContextKey   contextKey = "principal"
	credentialsContextKey contextKey = "vcs-credentials"
)

// PrincipalType distinguishes users from groups in ACL entries.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "USER"
	PrincipalGroup PrincipalType = "GROUP"
)

// Principal is the caller on whose behalf an operation runs.
type Principal struct {
	Name   string
	Groups []string
}

// InGroup reports whether the principal is a member of group.
func (p *Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// WithPrincipal injects a principal into a context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFrom returns the principal stored in ctx. A nil result means the
// call comes from the agent itself and is not subject to ACL checks.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// Credentials authenticate the VCS connection for a single request.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// WithCredentials scopes VCS credentials to ctx.
func WithCredentials(ctx context.Context, c *Credentials) context.Context {
	return context.WithValue(ctx, credentialsContextKey, c)
}

// CredentialsFrom returns the VCS credentials scoped to ctx, or nil.
func CredentialsFrom(ctx context.Context) *Credentials {
	c, _ := ctx.Value(credentialsContextKey).(*Credentials)
	return c
}
