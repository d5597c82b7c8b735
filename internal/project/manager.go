package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/events"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/handler"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/importer"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/projecttype"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Options configures a Manager. FileSystem and Types are required.
type Options struct {
	FileSystem *vfs.FileSystem
	Types      *projecttype.Registry
	Handlers   *handler.Registry

	// Store defaults to a FolderConfigStore on FileSystem.
	Store ConfigStore

	// Importers defaults to the zip and git importers.
	Importers *importer.Registry

	// Events receives lifecycle and import progress events. May be nil.
	Events *events.Broadcaster

	Clock         clock.Clock
	ProgressDelay time.Duration
}

// Manager is the project registry of one workspace.
type Manager struct {
	fsys          *vfs.FileSystem
	types         *projecttype.Registry
	handlers      *handler.Registry
	store         ConfigStore
	importers     *importer.Registry
	events        *events.Broadcaster
	clock         clock.Clock
	progressDelay time.Duration

	// mu serializes configuration read-modify-write. Handlers never run
	// while it is held.
	mu sync.Mutex
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.FileSystem == nil {
		return nil, errors.New("project: file system is required")
	}
	if opts.Types == nil {
		return nil, errors.New("project: type registry is required")
	}
	m := &Manager{
		fsys:          opts.FileSystem,
		types:         opts.Types,
		handlers:      opts.Handlers,
		store:         opts.Store,
		importers:     opts.Importers,
		events:        opts.Events,
		clock:         opts.Clock,
		progressDelay: opts.ProgressDelay,
	}
	if m.handlers == nil {
		m.handlers = handler.NewRegistry()
	}
	if m.store == nil {
		m.store = NewFolderConfigStore(opts.FileSystem)
	}
	if m.importers == nil {
		m.importers = importer.NewRegistry(importer.ZipImporter{}, importer.GitImporter{})
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.progressDelay <= 0 {
		m.progressDelay = importer.DefaultProgressDelay
	}
	return m, nil
}

// FileSystem returns the store the manager works on.
func (m *Manager) FileSystem() *vfs.FileSystem { return m.fsys }

// Types returns the project type registry.
func (m *Manager) Types() *projecttype.Registry { return m.types }

// Handlers returns the handler registry.
func (m *Manager) Handlers() *handler.Registry { return m.handlers }

// Importers returns the importer registry.
func (m *Manager) Importers() *importer.Registry { return m.importers }

// observe classifies *err at the manager boundary and records the
// operation.
func (m *Manager) observe(op string, start time.Time, err *error) {
	*err = apperr.ServerBoundary(*err)
	metrics.RecordProjectOperation(op, time.Since(start), *err == nil)
}

func (m *Manager) publish(ev events.Event) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}

func isRootLevel(p string) bool {
	return p != vfs.Root && vfs.Parent(p) == vfs.Root
}

func deepestModule(c *Config, p string) *Config {
	for _, mod := range c.Modules {
		if mod.Path == p || vfs.IsAncestor(mod.Path, p) {
			return deepestModule(mod, p)
		}
	}
	return c
}

// owner returns the nearest stored configuration at or above p, and the
// deepest configuration inside it (itself or a module) containing p.
func (m *Manager) owner(ctx context.Context, p string) (top, cfg *Config, err error) {
	for cur := p; ; cur = vfs.Parent(cur) {
		c, err := m.store.Load(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			return c, deepestModule(c, p), nil
		}
		if cur == vfs.Root {
			return nil, nil, nil
		}
	}
}

// registered returns the configuration registered exactly at p, with the
// top configuration storing it.
func (m *Manager) registered(ctx context.Context, p string) (top, cfg *Config, err error) {
	top, cfg, err = m.owner(ctx, p)
	if err != nil || cfg == nil || cfg.Path != p {
		return nil, nil, err
	}
	return top, cfg, nil
}

// materialize computes the project view of cfg. Failures are recorded as
// problems instead of errors.
func (m *Manager) materialize(ctx context.Context, folder *entry.FolderEntry, cfg *Config) *Project {
	proj := &Project{Config: *cfg.Clone()}
	if proj.Name == "" {
		proj.Name = vfs.Base(proj.Path)
	}

	types, err := projecttype.NewProjectTypes(cfg.Path, cfg.Type, cfg.Mixins, m.types)
	if err != nil {
		proj.Problems = append(proj.Problems, Problem{Code: ProblemTypeResolution, Message: err.Error()})
		types, err = projecttype.NewProjectTypes(cfg.Path, projecttype.BlankTypeID, nil, m.types)
		if err != nil {
			// The blank type is always registered.
			panic("project: resolving blank type: " + err.Error())
		}
	} else {
		proj.Type = types.Primary().ID
		proj.Mixins = types.MixinIDs()
	}
	if folder != nil {
		types.AddTransient(ctx, folder, m.types)
	}
	proj.types = types

	defs, err := types.Attributes()
	if err != nil {
		proj.Problems = append(proj.Problems, Problem{Code: ProblemTypeResolution, Message: err.Error()})
		defs = map[string]*projecttype.Attribute{}
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string][]string, len(defs))
	for _, name := range names {
		a := defs[name]
		switch {
		case !a.IsVariable():
			values[name] = append([]string(nil), a.Values...)
		case a.IsProvided():
			if folder == nil {
				continue
			}
			v, err := a.Factory.NewInstance(folder).Values(ctx, name)
			if err == nil && len(v) == 0 && a.Required {
				err = apperr.ValueStoragef("attribute %s has no value", name)
			}
			if err != nil {
				if a.Required {
					proj.Problems = append(proj.Problems, Problem{Code: ProblemAttributeValue, Message: err.Error()})
				}
				continue
			}
			values[name] = v
		default:
			if v, ok := cfg.Attributes[name]; ok {
				values[name] = append([]string(nil), v...)
			}
		}
	}
	for name, v := range cfg.Attributes {
		if _, known := defs[name]; !known {
			values[name] = append([]string(nil), v...)
		}
	}
	proj.Attributes = values
	proj.Visibility = m.visibility(ctx, cfg.Path)
	return proj
}

// unconfigured describes a root-level folder without stored
// configuration.
func (m *Manager) unconfigured(ctx context.Context, folder *entry.FolderEntry) *Project {
	proj := m.materialize(ctx, folder, &Config{Name: folder.Name(), Path: folder.Path()})
	proj.Problems = append([]Problem{{
		Code:    ProblemNoConfig,
		Message: fmt.Sprintf("no project configuration in %s", folder.Path()),
	}}, proj.Problems...)
	return proj
}

// storable returns the configuration to persist for cfg. Provided
// attribute values are written through their providers; the rest is kept
// in the returned configuration.
func (m *Manager) storable(ctx context.Context, folder *entry.FolderEntry, cfg *Config, types *projecttype.ProjectTypes) (*Config, error) {
	defs, err := types.Attributes()
	if err != nil {
		return nil, err
	}
	saved := &Config{
		Name:        cfg.Name,
		Path:        cfg.Path,
		Description: cfg.Description,
		Type:        types.Primary().ID,
		Mixins:      types.MixinIDs(),
		Attributes:  make(map[string][]string),
		Source:      cfg.Source,
	}
	for _, mod := range cfg.Modules {
		saved.Modules = append(saved.Modules, mod.Clone())
	}
	if saved.Name == "" {
		saved.Name = vfs.Base(cfg.Path)
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := defs[name]
		if !a.IsVariable() {
			continue
		}
		v, has := cfg.Attributes[name]
		if a.IsProvided() {
			if !has || len(v) == 0 {
				continue
			}
			err := a.Factory.NewInstance(folder).SetValues(ctx, name, v)
			if err != nil && !errors.Is(err, projecttype.ErrReadOnlyProvider) {
				return nil, apperr.Wrap(apperr.ErrValueStorage, err, fmt.Sprintf("store attribute %s of %s", name, cfg.Path))
			}
			continue
		}
		if a.Required && len(v) == 0 {
			return nil, apperr.Constraintf("required attribute %s of type %s has no value for %s",
				name, a.ProjectType, cfg.Path)
		}
		if has {
			saved.Attributes[name] = append([]string(nil), v...)
		}
	}
	for name, v := range cfg.Attributes {
		if _, known := defs[name]; !known {
			saved.Attributes[name] = append([]string(nil), v...)
		}
	}
	return saved, nil
}

// GetProject returns the project registered at p. A root-level folder
// without configuration is reported with a ProblemNoConfig problem.
func (m *Manager) GetProject(ctx context.Context, p string) (proj *Project, err error) {
	defer m.observe("get", time.Now(), &err)
	p = vfs.Clean(p)
	folder, err := entry.LookupFolder(ctx, m.fsys, p)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("project %s does not exist", p)
	}
	_, cfg, err := m.registered(ctx, p)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if isRootLevel(p) {
			return m.unconfigured(ctx, folder), nil
		}
		return nil, apperr.NotFoundf("%s is not a project", p)
	}
	return m.materialize(ctx, folder, cfg), nil
}

// GetProjects lists the projects in the root-level folders of the
// workspace.
func (m *Manager) GetProjects(ctx context.Context) (out []*Project, err error) {
	defer m.observe("list", time.Now(), &err)
	root, err := entry.Root(ctx, m.fsys)
	if err != nil {
		return nil, err
	}
	folders, err := root.ChildFolders(ctx)
	if err != nil {
		return nil, err
	}
	configured := 0
	for _, folder := range folders {
		if folder.Name() == MarkerFolder {
			continue
		}
		cfg, err := m.store.Load(ctx, folder.Path())
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			out = append(out, m.unconfigured(ctx, folder))
			continue
		}
		configured++
		out = append(out, m.materialize(ctx, folder, cfg))
	}
	metrics.SetProjectsRegistered(configured)
	return out, nil
}

// GetClosest returns the innermost project or module containing p. When
// nothing above p is configured, the root-level folder holding p is
// reported as an unconfigured project.
func (m *Manager) GetClosest(ctx context.Context, p string) (proj *Project, err error) {
	defer m.observe("get_closest", time.Now(), &err)
	p = vfs.Clean(p)
	_, cfg, err := m.owner(ctx, p)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		folder, err := entry.LookupFolder(ctx, m.fsys, cfg.Path)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			return m.materialize(ctx, folder, cfg), nil
		}
	}
	segs := vfs.Segments(p)
	if len(segs) == 0 {
		return nil, apperr.NotFoundf("no project contains %s", p)
	}
	folder, err := entry.LookupFolder(ctx, m.fsys, vfs.Join(vfs.Root, segs[0]))
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("no project contains %s", p)
	}
	return m.unconfigured(ctx, folder), nil
}

// OwnerPath returns the path of the project GetClosest would return for p
// without materializing it: only stored configurations are read.
func (m *Manager) OwnerPath(ctx context.Context, p string) (string, error) {
	p = vfs.Clean(p)
	_, cfg, err := m.owner(ctx, p)
	if err != nil {
		return "", err
	}
	if cfg != nil {
		return cfg.Path, nil
	}
	segs := vfs.Segments(p)
	if len(segs) == 0 {
		return "", apperr.NotFoundf("no project contains %s", p)
	}
	return vfs.Join(vfs.Root, segs[0]), nil
}

// CreateProject creates the project described by cfg. Types are resolved
// before anything is written. The project folder is created when absent
// and removed again if creation fails.
func (m *Manager) CreateProject(ctx context.Context, cfg *Config, options map[string]string) (proj *Project, err error) {
	defer m.observe("create", time.Now(), &err)
	if cfg == nil || cfg.Path == "" {
		return nil, apperr.Conflictf("project configuration has no path")
	}
	cfg = cfg.Clone()
	cfg.Path = vfs.Clean(cfg.Path)
	if cfg.Path == vfs.Root {
		return nil, apperr.Conflictf("the workspace root cannot be a project")
	}
	if cfg.Name == "" {
		cfg.Name = vfs.Base(cfg.Path)
	}
	log := logging.WithContext(ctx).With(zap.String("project", cfg.Path))

	types, err := projecttype.NewProjectTypes(cfg.Path, cfg.Type, cfg.Mixins, m.types)
	if err != nil {
		return nil, err
	}
	if _, existing, err := m.registered(ctx, cfg.Path); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflictf("project %s already exists", cfg.Path)
	}

	folder, created, err := m.ensureFolder(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && created {
			if rmErr := folder.Remove(ctx); rmErr != nil {
				log.Warn("failed to remove folder of failed project", zap.Error(rmErr))
			}
		}
	}()

	for _, h := range m.handlers.CreateProject(types.Primary().ID) {
		if err := h.OnCreateProject(ctx, folder, cloneAttributes(cfg.Attributes), options); err != nil {
			return nil, fmt.Errorf("create project %s: %w", cfg.Path, err)
		}
	}

	saved, err := m.storable(ctx, folder, cfg, types)
	if err != nil {
		return nil, err
	}
	if err := m.save(ctx, saved, true); err != nil {
		return nil, err
	}

	if err := m.projectCreated(ctx, folder, types); err != nil {
		return nil, err
	}
	log.Info("project created", zap.String("type", types.Primary().ID))
	m.publish(events.Event{Type: events.EventProjectCreated, Path: cfg.Path, Project: cfg.Path})
	return m.materialize(ctx, folder, saved), nil
}

// ensureFolder returns the folder at p, creating it and its parents when
// absent.
func (m *Manager) ensureFolder(ctx context.Context, p string) (*entry.FolderEntry, bool, error) {
	existing, err := entry.Lookup(ctx, m.fsys, p)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		folder, ok := existing.(*entry.FolderEntry)
		if !ok {
			return nil, false, apperr.Conflictf("%s is a file", p)
		}
		return folder, false, nil
	}
	root, err := entry.Root(ctx, m.fsys)
	if err != nil {
		return nil, false, err
	}
	folder, err := root.CreateFolder(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return folder, true, nil
}

// save stores a top-level configuration. With mustBeNew it fails when a
// configuration appeared at the same path in the meantime.
func (m *Manager) save(ctx context.Context, cfg *Config, mustBeNew bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mustBeNew {
		existing, err := m.store.Load(ctx, cfg.Path)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflictf("project %s already exists", cfg.Path)
		}
	}
	return m.store.Save(ctx, cfg)
}

func (m *Manager) projectCreated(ctx context.Context, folder *entry.FolderEntry, types *projecttype.ProjectTypes) error {
	for _, h := range m.handlers.ProjectCreated(types.Primary().ID) {
		if err := h.OnProjectCreated(ctx, folder); err != nil {
			return fmt.Errorf("project created hook for %s: %w", folder.Path(), err)
		}
	}
	return nil
}

// UpdateProject replaces the configuration of an existing project or
// module. A root-level folder without configuration may be updated, which
// registers it. When cfg has no modules the existing ones are kept.
func (m *Manager) UpdateProject(ctx context.Context, cfg *Config) (proj *Project, err error) {
	defer m.observe("update", time.Now(), &err)
	if cfg == nil || cfg.Path == "" {
		return nil, apperr.Conflictf("project configuration has no path")
	}
	next := cfg.Clone()
	next.Path = vfs.Clean(next.Path)
	p := next.Path

	folder, err := entry.LookupFolder(ctx, m.fsys, p)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("project %s does not exist", p)
	}
	types, err := projecttype.NewProjectTypes(p, next.Type, next.Mixins, m.types)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	saved, prev, err := m.updateLocked(ctx, folder, next, types)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	oldPrimary := ""
	var oldMixins []string
	if prev != nil {
		oldPrimary, oldMixins = prev.Type, prev.Mixins
	}
	if err := m.typesChanged(ctx, folder, types, oldPrimary, oldMixins); err != nil {
		return nil, err
	}

	logging.WithContext(ctx).Info("project updated",
		zap.String("project", p), zap.String("type", saved.Type))
	m.publish(events.Event{Type: events.EventProjectUpdated, Path: p, Project: p})
	return m.materialize(ctx, folder, saved), nil
}

func (m *Manager) updateLocked(ctx context.Context, folder *entry.FolderEntry, next *Config, types *projecttype.ProjectTypes) (saved, prev *Config, err error) {
	p := next.Path
	top, cur, err := m.registered(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil && !isRootLevel(p) {
		return nil, nil, apperr.NotFoundf("project %s does not exist", p)
	}
	if cur != nil {
		prev = cur.Clone()
		if next.Modules == nil {
			next.Modules = cur.Modules
		}
		if next.Name == "" {
			next.Name = cur.Name
		}
	}

	saved, err = m.storable(ctx, folder, next, types)
	if err != nil {
		return nil, nil, err
	}
	if top != nil && top != cur {
		parent := top.parentOf(p)
		for i, mod := range parent.Modules {
			if mod.Path == p {
				parent.Modules[i] = saved
			}
		}
		return saved, prev, m.store.Save(ctx, top)
	}
	return saved, prev, m.store.Save(ctx, saved)
}

// typesChanged runs ProjectTypeChanged handlers for a new primary type and
// for every mixin not present before.
func (m *Manager) typesChanged(ctx context.Context, folder *entry.FolderEntry, types *projecttype.ProjectTypes, oldPrimary string, oldMixins []string) error {
	var changed []string
	if types.Primary().ID != oldPrimary {
		changed = append(changed, types.Primary().ID)
	}
	had := make(map[string]bool, len(oldMixins))
	for _, id := range oldMixins {
		had[id] = true
	}
	for _, id := range types.MixinIDs() {
		if !had[id] {
			changed = append(changed, id)
		}
	}
	for _, id := range changed {
		for _, h := range m.handlers.ProjectTypeChanged(id) {
			if err := h.OnProjectTypeChanged(ctx, folder); err != nil {
				return fmt.Errorf("type change hook %s for %s: %w", id, folder.Path(), err)
			}
		}
	}
	return nil
}

// ImportProject fills the folder at p from src and registers it as a
// project. The type comes from options["type"] or, when absent, from the
// first primary type whose estimation matches the imported content. If
// anything fails, what the import created is removed and nothing is
// registered.
func (m *Manager) ImportProject(ctx context.Context, p string, src SourceStorage, options map[string]string) (proj *Project, err error) {
	defer m.observe("import", time.Now(), &err)
	p = vfs.Clean(p)
	if p == vfs.Root {
		return nil, apperr.Conflictf("cannot import into the workspace root")
	}
	ctx = logging.WithFields(ctx, zap.String("project", p), zap.String("source", src.Type))
	log := logging.WithContext(ctx)

	imp, err := m.importers.Get(src.Type)
	if err != nil {
		return nil, err
	}
	if _, existing, err := m.registered(ctx, p); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflictf("project %s already exists", p)
	}

	folder, created, err := m.ensureFolder(ctx, p)
	if err != nil {
		return nil, err
	}
	before := map[string]bool{}
	if !created {
		children, err := folder.Children(ctx, nil)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			before[c.Name()] = true
		}
	}
	defer func() {
		if err != nil {
			m.cleanupImport(ctx, folder, created, before)
		}
	}()

	progress := importer.NewRateLimited(m.clock, m.progressDelay, func(line string) {
		m.publish(events.Event{Type: events.EventImportProgress, Path: p, Project: p, Line: line})
	})
	err = imp.Import(ctx, folder, src, progress)
	progress.Close()
	metrics.RecordImport(src.Type, err == nil)
	if err != nil {
		log.Warn("import failed", zap.Error(err))
		return nil, err
	}

	typeID := options["type"]
	if typeID == "" {
		typeID = m.detectPrimary(ctx, folder)
	}
	source := src
	cfg := &Config{Name: vfs.Base(p), Path: p, Type: typeID, Source: &source}
	types, err := projecttype.NewProjectTypes(p, cfg.Type, nil, m.types)
	if err != nil {
		return nil, err
	}
	saved, err := m.storable(ctx, folder, cfg, types)
	if err != nil {
		return nil, err
	}
	if err = m.save(ctx, saved, true); err != nil {
		return nil, err
	}

	for _, h := range m.handlers.PostImport(types.Primary().ID) {
		if err = h.OnProjectImported(ctx, folder); err != nil {
			if delErr := m.store.Delete(ctx, p); delErr != nil {
				log.Warn("failed to unregister project", zap.Error(delErr))
			}
			return nil, fmt.Errorf("post import hook for %s: %w", p, err)
		}
	}

	log.Info("project imported", zap.String("type", saved.Type))
	m.publish(events.Event{Type: events.EventProjectCreated, Path: p, Project: p})
	return m.materialize(ctx, folder, saved), nil
}

// detectPrimary returns the first primary type matching folder with at
// least one attribute value, most specific types first, or the blank type.
func (m *Manager) detectPrimary(ctx context.Context, folder *entry.FolderEntry) string {
	for _, est := range projecttype.EstimateAll(ctx, folder, m.types, false) {
		if !est.Matched || len(est.Attributes) == 0 {
			continue
		}
		if def, err := m.types.Get(est.Type); err == nil && def.Primaryable {
			return est.Type
		}
	}
	return projecttype.BlankTypeID
}

func (m *Manager) cleanupImport(ctx context.Context, folder *entry.FolderEntry, created bool, before map[string]bool) {
	log := logging.WithContext(ctx)
	if created {
		if err := folder.Remove(ctx); err != nil {
			log.Warn("failed to remove folder of failed import", zap.Error(err))
		}
		return
	}
	children, err := folder.Children(ctx, nil)
	if err != nil {
		log.Warn("failed to list folder of failed import", zap.Error(err))
		return
	}
	for _, c := range children {
		if before[c.Name()] {
			continue
		}
		if err := c.Remove(ctx); err != nil {
			log.Warn("failed to remove imported item", zap.String("path", c.Path()), zap.Error(err))
		}
	}
}

// ConvertFolderToProject registers an existing folder as a project. With a
// nil cfg the type is detected from the folder content. Converting a
// registered project updates it.
func (m *Manager) ConvertFolderToProject(ctx context.Context, p string, cfg *Config) (proj *Project, err error) {
	p = vfs.Clean(p)
	if cfg == nil {
		cfg = &Config{}
	}
	cfg = cfg.Clone()
	cfg.Path = p

	_, existing, err := m.registered(ctx, p)
	if err != nil {
		return nil, apperr.ServerBoundary(err)
	}
	if existing != nil {
		if cfg.Type == "" {
			cfg.Type = existing.Type
		}
		return m.UpdateProject(ctx, cfg)
	}

	defer m.observe("convert", time.Now(), &err)
	folder, err := entry.LookupFolder(ctx, m.fsys, p)
	if err != nil {
		return nil, err
	}
	if folder == nil || p == vfs.Root {
		return nil, apperr.NotFoundf("folder %s does not exist", p)
	}
	if cfg.Type == "" {
		cfg.Type = m.detectPrimary(ctx, folder)
	}
	if cfg.Name == "" {
		cfg.Name = folder.Name()
	}
	types, err := projecttype.NewProjectTypes(p, cfg.Type, cfg.Mixins, m.types)
	if err != nil {
		return nil, err
	}
	saved, err := m.storable(ctx, folder, cfg, types)
	if err != nil {
		return nil, err
	}
	if err := m.save(ctx, saved, true); err != nil {
		return nil, err
	}
	if err := m.projectCreated(ctx, folder, types); err != nil {
		return nil, err
	}
	m.publish(events.Event{Type: events.EventProjectCreated, Path: p, Project: p})
	return m.materialize(ctx, folder, saved), nil
}

// EstimateProject computes the provided attributes of type typeID for the
// folder at p. A folder that is not of that type yields a Conflict.
func (m *Manager) EstimateProject(ctx context.Context, p, typeID string) (attrs map[string][]string, err error) {
	defer m.observe("estimate", time.Now(), &err)
	folder, err := entry.LookupFolder(ctx, m.fsys, vfs.Clean(p))
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("folder %s does not exist", p)
	}
	def, err := m.types.Get(typeID)
	if err != nil {
		return nil, err
	}
	return projecttype.Estimate(ctx, folder, def)
}

// ResolveSources estimates every type against the folder at p and returns
// those that match with at least one attribute value. The blank type is
// appended when no primary type matched.
func (m *Manager) ResolveSources(ctx context.Context, p string, transientOnly bool) (out []SourceEstimation, err error) {
	defer m.observe("resolve_sources", time.Now(), &err)
	folder, err := entry.LookupFolder(ctx, m.fsys, vfs.Clean(p))
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("folder %s does not exist", p)
	}
	primaryMatched := false
	for _, est := range projecttype.EstimateAll(ctx, folder, m.types, transientOnly) {
		if !est.Matched || len(est.Attributes) == 0 {
			continue
		}
		if def, err := m.types.Get(est.Type); err == nil && def.Primaryable {
			primaryMatched = true
		}
		out = append(out, est)
	}
	if !transientOnly && !primaryMatched {
		out = append(out, SourceEstimation{
			Type:       projecttype.BlankTypeID,
			Matched:    true,
			Attributes: map[string][]string{},
		})
	}
	return out, nil
}
