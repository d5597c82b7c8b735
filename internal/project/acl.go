package project

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// visibility reports a project as private when its folder carries its own
// ACL and as public otherwise.
func (m *Manager) visibility(ctx context.Context, p string) string {
	ctx = system(ctx)
	f, err := m.fsys.Get(ctx, p)
	if err != nil || f == nil {
		return VisibilityPublic
	}
	acl, err := f.ACL(ctx)
	if err != nil || len(acl) == 0 {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

func (m *Manager) itemAt(ctx context.Context, p string) (*vfs.File, error) {
	f, err := m.fsys.Get(ctx, vfs.Clean(p))
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.NotFoundf("item %s does not exist", p)
	}
	return f, nil
}

// GetPermissions returns the ACL entries set on the item at p. With a
// principal only that principal's entry is returned, if any.
func (m *Manager) GetPermissions(ctx context.Context, p string, principal *vfs.Principal) (acl []vfs.AccessControlEntry, err error) {
	defer m.observe("get_permissions", time.Now(), &err)
	f, err := m.itemAt(ctx, p)
	if err != nil {
		return nil, err
	}
	acl, err = f.ACL(ctx)
	if err != nil || principal == nil {
		return acl, err
	}
	if perms := vfs.PermissionsOf(acl, *principal); len(perms) > 0 {
		return []vfs.AccessControlEntry{{Principal: *principal, Permissions: perms}}, nil
	}
	return []vfs.AccessControlEntry{}, nil
}

// SetPermissions replaces the entries of the principals named in entries.
// Other principals keep their entries; an entry without permissions
// removes its principal.
func (m *Manager) SetPermissions(ctx context.Context, p string, entries []vfs.AccessControlEntry) (err error) {
	defer m.observe("set_permissions", time.Now(), &err)
	f, err := m.itemAt(ctx, p)
	if err != nil {
		return err
	}
	return f.UpdateACL(ctx, entries, false)
}

// SwitchVisibility makes the project at p private, restricting it to the
// developer group, or public, clearing its ACL.
func (m *Manager) SwitchVisibility(ctx context.Context, p, visibility string) (err error) {
	defer m.observe("switch_visibility", time.Now(), &err)
	p = vfs.Clean(p)
	_, cfg, err := m.registered(ctx, p)
	if err != nil {
		return err
	}
	if cfg == nil && !isRootLevel(p) {
		return apperr.NotFoundf("project %s does not exist", p)
	}
	f, err := m.itemAt(ctx, p)
	if err != nil {
		return err
	}
	if !f.IsFolder() {
		return apperr.NotFoundf("project %s does not exist", p)
	}

	switch visibility {
	case VisibilityPrivate:
		err = f.UpdateACL(ctx, []vfs.AccessControlEntry{{
			Principal:   vfs.Group(DeveloperGroup),
			Permissions: []string{vfs.PermAll},
		}}, true)
	case VisibilityPublic:
		err = f.UpdateACL(ctx, nil, true)
	default:
		return apperr.Conflictf("unknown visibility %q", visibility)
	}
	if err != nil {
		return err
	}
	logging.WithContext(ctx).Info("project visibility changed",
		zap.String("project", p), zap.String("visibility", visibility))
	m.publish(events.Event{Type: events.EventProjectUpdated, Path: p, Project: p,
		Payload: map[string]string{"visibility": visibility}})
	return nil
}
