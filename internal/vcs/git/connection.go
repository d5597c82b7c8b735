package git

import (
	"context"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vcs"
)

// Connection is a vcs.Connection bound to one request's credentials.
type Connection struct {
	*Repository
	creds *auth.Credentials
}

// Credentials returns the credentials the connection was opened with.
func (c *Connection) Credentials() *auth.Credentials { return c.creds }

// Factory opens git connections for projects whose folders live on local
// disk. Resolve maps a workspace path to a directory.
type Factory struct {
	Resolve func(project string) (dir string, ok bool)
}

// Connect implements vcs.ConnectionFactory.
func (f Factory) Connect(ctx context.Context, project string) (vcs.Connection, error) {
	if f.Resolve == nil {
		return nil, apperr.Serverf("project %s is not on local disk", project)
	}
	dir, ok := f.Resolve(project)
	if !ok {
		return nil, apperr.Serverf("project %s is not on local disk", project)
	}
	return &Connection{Repository: NewRepository(dir), creds: auth.CredentialsFrom(ctx)}, nil
}

var _ vcs.ConnectionFactory = Factory{}
