package project

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Delete removes the item at p. Deleting a project unregisters it and every
// project below it; deleting a module also removes it from its parent.
// Deleting a missing item succeeds.
func (m *Manager) Delete(ctx context.Context, p string) (err error) {
	defer m.observe("delete", time.Now(), &err)
	p = vfs.Clean(p)
	if p == vfs.Root {
		return apperr.Forbiddenf("the workspace root cannot be deleted")
	}
	e, err := entry.Lookup(ctx, m.fsys, p)
	if err != nil || e == nil {
		return err
	}

	top, cfg, err := m.owner(ctx, p)
	if err != nil {
		return err
	}
	isProject := cfg != nil && cfg.Path == p

	if err := e.Remove(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	err = m.dropConfigsLocked(ctx, top, p)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	logging.WithContext(ctx).Info("item deleted", zap.String("path", p), zap.Bool("project", isProject))
	if isProject {
		m.publish(events.Event{Type: events.EventProjectDeleted, Path: p, Project: p})
	} else {
		m.publish(events.Event{Type: events.EventItemDeleted, Path: p})
	}
	return nil
}

// dropConfigsLocked unregisters every configuration at or below p and
// removes modules at or below p from top.
func (m *Manager) dropConfigsLocked(ctx context.Context, top *Config, p string) error {
	all, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range all {
		if c.Path == p || vfs.IsAncestor(p, c.Path) {
			if err := m.store.Delete(ctx, c.Path); err != nil {
				return err
			}
		}
	}
	if top == nil || top.Path == p || vfs.IsAncestor(p, top.Path) {
		return nil
	}
	current, err := m.store.Load(ctx, top.Path)
	if err != nil || current == nil {
		return err
	}
	if pruneModules(current, p) {
		return m.store.Save(ctx, current)
	}
	return nil
}

// pruneModules removes modules of c at or below p.
func pruneModules(c *Config, p string) bool {
	changed := false
	kept := c.Modules[:0]
	for _, mod := range c.Modules {
		if mod.Path == p || vfs.IsAncestor(p, mod.Path) {
			changed = true
			continue
		}
		if pruneModules(mod, p) {
			changed = true
		}
		kept = append(kept, mod)
	}
	c.Modules = kept
	return changed
}

// Move moves the item at p into newParent, named newName or its current
// name. Configurations of moved projects follow the item.
func (m *Manager) Move(ctx context.Context, p, newParent, newName string, overwrite bool) (moved entry.Entry, err error) {
	defer m.observe("move", time.Now(), &err)
	return m.relocate(ctx, p, newParent, newName, overwrite, true)
}

// Copy copies the item at p into newParent. Copied projects are registered
// at their new location.
func (m *Manager) Copy(ctx context.Context, p, newParent, newName string, overwrite bool) (copied entry.Entry, err error) {
	defer m.observe("copy", time.Now(), &err)
	return m.relocate(ctx, p, newParent, newName, overwrite, false)
}

// Rename renames the item at p within its folder. A non-empty mediaType is
// applied to renamed files. Renaming a project also renames it and
// rewrites the paths of its modules.
func (m *Manager) Rename(ctx context.Context, p, newName, mediaType string) (renamed entry.Entry, err error) {
	defer m.observe("rename", time.Now(), &err)
	p = vfs.Clean(p)
	renamed, err = m.relocate(ctx, p, vfs.Parent(p), newName, false, true)
	if err != nil {
		return nil, err
	}
	if file, ok := renamed.(*entry.FileEntry); ok && mediaType != "" {
		if err := file.SetMediaType(ctx, mediaType); err != nil {
			return nil, err
		}
	}
	return renamed, nil
}

func (m *Manager) relocate(ctx context.Context, p, newParent, newName string, overwrite, move bool) (entry.Entry, error) {
	p = vfs.Clean(p)
	if p == vfs.Root {
		return nil, apperr.Forbiddenf("the workspace root cannot be moved")
	}
	e, err := entry.Lookup(ctx, m.fsys, p)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFoundf("item %s does not exist", p)
	}
	if newName == "" {
		newName = e.Name()
	}
	if !vfs.ValidName(newName) {
		return nil, apperr.Conflictf("invalid name %q", newName)
	}
	target := vfs.Join(newParent, newName)
	if move && (target == p || vfs.IsAncestor(p, target)) {
		if target == p {
			return e, nil
		}
		return nil, apperr.Conflictf("cannot move %s into itself", p)
	}

	var configs []*Config
	var top *Config
	if e.IsFolder() {
		all, err := m.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if c.Path == p || vfs.IsAncestor(p, c.Path) {
				configs = append(configs, c)
			}
		}
		if top, _, err = m.owner(ctx, p); err != nil {
			return nil, err
		}
	}

	var result entry.Entry
	switch v := e.(type) {
	case *entry.FolderEntry:
		if move {
			result, err = v.MoveTo(ctx, newParent, newName, overwrite)
		} else {
			result, err = v.CopyTo(ctx, newParent, newName, overwrite)
		}
	case *entry.FileEntry:
		if move {
			result, err = v.MoveTo(ctx, newParent, newName, overwrite)
		} else {
			result, err = v.CopyTo(ctx, newParent, newName, overwrite)
		}
	}
	if err != nil {
		return nil, err
	}
	newPath := result.Path()

	m.mu.Lock()
	err = m.rebaseConfigsLocked(ctx, configs, top, p, newPath, move)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, c := range configs {
		switch {
		case !move:
			np := vfs.Rebase(c.Path, p, newPath)
			m.publish(events.Event{Type: events.EventProjectCreated, Path: np, Project: np})
		case c.Path == p:
			m.publish(events.Event{Type: events.EventProjectUpdated, Path: newPath, Project: newPath})
		}
	}
	if move {
		m.publish(events.Event{Type: events.EventItemMoved, Path: newPath, Payload: map[string]string{"from": p}})
	}
	return result, nil
}

// rebaseConfigsLocked registers configs at their new location below
// newPath. On move the old registrations are dropped and modules of top
// pointing into the moved folder follow it or are removed.
func (m *Manager) rebaseConfigsLocked(ctx context.Context, configs []*Config, top *Config, oldPath, newPath string, move bool) error {
	for _, c := range configs {
		next := c.Clone()
		next.rebase(oldPath, newPath)
		if move && c.Path == oldPath && vfs.Base(oldPath) != vfs.Base(newPath) {
			next.Name = vfs.Base(newPath)
		}
		if move {
			if err := m.store.Delete(ctx, c.Path); err != nil {
				return err
			}
		}
		if err := m.store.Save(ctx, next); err != nil {
			return err
		}
	}
	if !move || top == nil || top.Path == oldPath || vfs.IsAncestor(oldPath, top.Path) {
		return nil
	}

	current, err := m.store.Load(ctx, top.Path)
	if err != nil || current == nil {
		return err
	}
	if vfs.IsAncestor(current.Path, newPath) {
		if rebaseModules(current, oldPath, newPath) {
			return m.store.Save(ctx, current)
		}
		return nil
	}
	if pruneModules(current, oldPath) {
		return m.store.Save(ctx, current)
	}
	return nil
}

func rebaseModules(c *Config, oldPath, newPath string) bool {
	changed := false
	for _, mod := range c.Modules {
		if mod.Path == oldPath || vfs.IsAncestor(oldPath, mod.Path) {
			if mod.Path == oldPath {
				mod.Name = vfs.Base(newPath)
			}
			mod.rebase(oldPath, newPath)
			changed = true
			continue
		}
		if rebaseModules(mod, oldPath, newPath) {
			changed = true
		}
	}
	return changed
}
