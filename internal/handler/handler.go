// Package handler holds per-project-type extension points invoked by the
// project manager at lifecycle moments. Any number of handlers may be
// registered for a type id; all of them run, in registration order.
package handler

import (
	"context"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// Handler is implemented by every extension point.
type Handler interface {
	// ProjectType is the id of the type the handler serves.
	ProjectType() string
}

// CreateProjectHandler scaffolds a new project's folder.
type CreateProjectHandler interface {
	Handler
	OnCreateProject(ctx context.Context, base *entry.FolderEntry, attributes map[string][]string, options map[string]string) error
}

// PostImportProjectHandler runs after an import completed successfully.
type PostImportProjectHandler interface {
	Handler
	OnProjectImported(ctx context.Context, folder *entry.FolderEntry) error
}

// GetItemHandler may adjust the attributes reported for an item.
type GetItemHandler interface {
	Handler
	OnGetItem(ctx context.Context, item entry.Entry, attributes map[string][]string) error
}

// GetModulesHandler may append auto-discovered module paths.
type GetModulesHandler interface {
	Handler
	OnGetModules(ctx context.Context, parent *entry.FolderEntry, modules *[]string) error
}

// ProjectCreatedHandler runs after a project configuration is persisted.
type ProjectCreatedHandler interface {
	Handler
	OnProjectCreated(ctx context.Context, folder *entry.FolderEntry) error
}

// ProjectTypeChangedHandler runs when a type starts applying to an
// existing project, as a new primary type or as an added mixin.
type ProjectTypeChangedHandler interface {
	Handler
	OnProjectTypeChanged(ctx context.Context, folder *entry.FolderEntry) error
}

// CreateModuleHandler runs when a module of this type is added.
type CreateModuleHandler interface {
	Handler
	OnCreateModule(ctx context.Context, parent *entry.FolderEntry, modulePath string, options map[string]string) error
}

// RemoveModuleHandler runs when a module of this type is removed.
type RemoveModuleHandler interface {
	Handler
	OnRemoveModule(ctx context.Context, parent *entry.FolderEntry, modulePath string) error
}
