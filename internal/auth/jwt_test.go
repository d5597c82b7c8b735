package auth

import (
	"context"
	"testing"
	"time"
)

func TestIssueAndAuthenticate(t *testing.T) {
	a := New("test-secret")
	tok, exp, err := a.IssueToken("alice", []string{"workspace/developer"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("token already expired: %v", exp)
	}

	ctx, err := a.Authenticate(context.Background(), tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	p := PrincipalFrom(ctx)
	if p == nil || p.Name != "alice" {
		t.Fatalf("principal = %+v", p)
	}
	if !p.InGroup("workspace/developer") || p.InGroup("admins") {
		t.Errorf("unexpected group membership: %v", p.Groups)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	a := New("secret-a")
	other := New("secret-b")

	expired, _, err := a.IssueToken("bob", nil, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, _, err := other.IssueToken("bob", nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", foreign},
	}
	for _, tt := range tests {
		ctx, err := a.Authenticate(context.Background(), tt.token)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
		if PrincipalFrom(ctx) != nil {
			t.Errorf("%s: principal should not be set", tt.name)
		}
	}
}

func TestCredentialsContext(t *testing.T) {
	ctx := context.Background()
	if CredentialsFrom(ctx) != nil {
		t.Fatal("expected no credentials on empty context")
	}
	ctx = WithCredentials(ctx, &Credentials{Username: "u", Token: "t"})
	if c := CredentialsFrom(ctx); c == nil || c.Token != "t" {
		t.Errorf("credentials = %+v", c)
	}
}
