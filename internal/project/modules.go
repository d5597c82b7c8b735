package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/projecttype"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// resolveModulePath resolves a module path given absolute or relative to parent.
func resolveModulePath(parent, p string) (string, error) {
	if p == "" {
		return "", apperr.Conflictf("module configuration has no path")
	}
	if !strings.HasPrefix(p, "/") {
		p = vfs.Join(parent, p)
	}
	p = vfs.Clean(p)
	if !vfs.IsAncestor(parent, p) {
		return "", apperr.Conflictf("module %s is not inside project %s", p, parent)
	}
	return p, nil
}

// AddModule registers module inside the project or module at parentPath.
// The module folder is created when absent.
func (m *Manager) AddModule(ctx context.Context, parentPath string, module *Config, options map[string]string) (proj *Project, err error) {
	defer m.observe("add_module", time.Now(), &err)
	if module == nil {
		return nil, apperr.Conflictf("module configuration is required")
	}
	parentPath = vfs.Clean(parentPath)
	_, parent, err := m.registered(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, apperr.NotFoundf("project %s does not exist", parentPath)
	}
	mod := module.Clone()
	if mod.Path, err = resolveModulePath(parentPath, mod.Path); err != nil {
		return nil, err
	}
	if mod.Name == "" {
		mod.Name = vfs.Base(mod.Path)
	}
	if parent.FindModule(mod.Path) != nil {
		return nil, apperr.Conflictf("module %s already exists", mod.Path)
	}
	types, err := projecttype.NewProjectTypes(mod.Path, mod.Type, mod.Mixins, m.types)
	if err != nil {
		return nil, err
	}

	parentFolder, err := entry.LookupFolder(ctx, m.fsys, parentPath)
	if err != nil {
		return nil, err
	}
	if parentFolder == nil {
		return nil, apperr.NotFoundf("project folder %s does not exist", parentPath)
	}
	folder, _, err := m.ensureFolder(ctx, mod.Path)
	if err != nil {
		return nil, err
	}
	for _, h := range m.handlers.CreateModule(types.Primary().ID) {
		if err := h.OnCreateModule(ctx, parentFolder, mod.Path, options); err != nil {
			return nil, fmt.Errorf("create module %s: %w", mod.Path, err)
		}
	}
	saved, err := m.storable(ctx, folder, mod, types)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	err = m.attachModuleLocked(ctx, parentPath, saved)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx).Info("module added",
		zap.String("project", parentPath), zap.String("module", saved.Path))
	m.publish(events.Event{Type: events.EventProjectUpdated, Path: parentPath, Project: parentPath,
		Payload: map[string]string{"module": saved.Path}})
	return m.materialize(ctx, folder, saved), nil
}

func (m *Manager) attachModuleLocked(ctx context.Context, parentPath string, mod *Config) error {
	top, parent, err := m.registered(ctx, parentPath)
	if err != nil {
		return err
	}
	if parent == nil {
		return apperr.NotFoundf("project %s does not exist", parentPath)
	}
	if parent.FindModule(mod.Path) != nil {
		return apperr.Conflictf("module %s already exists", mod.Path)
	}
	parent.Modules = append(parent.Modules, mod)
	return m.store.Save(ctx, top)
}

// RemoveModule unregisters the module at modulePath from the project at
// parentPath. The module folder is left in place.
func (m *Manager) RemoveModule(ctx context.Context, parentPath, modulePath string) (err error) {
	defer m.observe("remove_module", time.Now(), &err)
	parentPath = vfs.Clean(parentPath)
	p, err := resolveModulePath(parentPath, modulePath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	removed, err := m.detachModuleLocked(ctx, parentPath, p)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	parentFolder, err := entry.LookupFolder(ctx, m.fsys, parentPath)
	if err != nil {
		return err
	}
	typeID := removed.Type
	if typeID == "" {
		typeID = projecttype.BlankTypeID
	}
	if parentFolder != nil {
		for _, h := range m.handlers.RemoveModule(typeID) {
			if err := h.OnRemoveModule(ctx, parentFolder, p); err != nil {
				return fmt.Errorf("remove module %s: %w", p, err)
			}
		}
	}

	logging.WithContext(ctx).Info("module removed",
		zap.String("project", parentPath), zap.String("module", p))
	m.publish(events.Event{Type: events.EventProjectUpdated, Path: parentPath, Project: parentPath,
		Payload: map[string]string{"module": p}})
	return nil
}

func (m *Manager) detachModuleLocked(ctx context.Context, parentPath, p string) (*Config, error) {
	top, parent, err := m.registered(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, apperr.NotFoundf("project %s does not exist", parentPath)
	}
	mod := parent.FindModule(p)
	if mod == nil {
		return nil, apperr.NotFoundf("module %s is not part of %s", p, parentPath)
	}
	parent.removeModule(p)
	return mod, m.store.Save(ctx, top)
}

// GetModules lists the module paths of the project at p: the registered
// modules followed by those reported by GetModules handlers of the
// project's types. Paths reported by both appear twice.
func (m *Manager) GetModules(ctx context.Context, p string) (out []string, err error) {
	defer m.observe("get_modules", time.Now(), &err)
	p = vfs.Clean(p)
	_, cfg, err := m.registered(ctx, p)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperr.NotFoundf("project %s does not exist", p)
	}
	folder, err := entry.LookupFolder(ctx, m.fsys, p)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("project folder %s does not exist", p)
	}

	out = []string{}
	for _, mod := range cfg.Modules {
		out = append(out, mod.Path)
	}
	for _, def := range m.materialize(ctx, folder, cfg).Types().All() {
		for _, h := range m.handlers.GetModules(def.ID) {
			if err := h.OnGetModules(ctx, folder, &out); err != nil {
				return nil, fmt.Errorf("get modules of %s: %w", p, err)
			}
		}
	}
	return out, nil
}
