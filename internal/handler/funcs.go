package handler

import (
	"context"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// CreateProjectFunc is a CreateProjectHandler built from a function.
type CreateProjectFunc struct {
	Type string
	Fn   func(ctx context.Context, base *entry.FolderEntry, attributes map[string][]string, options map[string]string) error
}

func (h CreateProjectFunc) ProjectType() string { return h.Type }

func (h CreateProjectFunc) OnCreateProject(ctx context.Context, base *entry.FolderEntry, attributes map[string][]string, options map[string]string) error {
	return h.Fn(ctx, base, attributes, options)
}

// PostImportFunc is a PostImportProjectHandler built from a function.
type PostImportFunc struct {
	Type string
	Fn   func(ctx context.Context, folder *entry.FolderEntry) error
}

func (h PostImportFunc) ProjectType() string { return h.Type }

func (h PostImportFunc) OnProjectImported(ctx context.Context, folder *entry.FolderEntry) error {
	return h.Fn(ctx, folder)
}

// GetItemFunc is a GetItemHandler built from a function.
type GetItemFunc struct {
	Type string
	Fn   func(ctx context.Context, item entry.Entry, attributes map[string][]string) error
}

func (h GetItemFunc) ProjectType() string { return h.Type }

func (h GetItemFunc) OnGetItem(ctx context.Context, item entry.Entry, attributes map[string][]string) error {
	return h.Fn(ctx, item, attributes)
}

// GetModulesFunc is a GetModulesHandler built from a function.
type GetModulesFunc struct {
	Type string
	Fn   func(ctx context.Context, parent *entry.FolderEntry, modules *[]string) error
}

func (h GetModulesFunc) ProjectType() string { return h.Type }

func (h GetModulesFunc) OnGetModules(ctx context.Context, parent *entry.FolderEntry, modules *[]string) error {
	return h.Fn(ctx, parent, modules)
}

// ProjectTypeChangedFunc is a ProjectTypeChangedHandler built from a function.
type ProjectTypeChangedFunc struct {
	Type string
	Fn   func(ctx context.Context, folder *entry.FolderEntry) error
}

func (h ProjectTypeChangedFunc) ProjectType() string { return h.Type }

func (h ProjectTypeChangedFunc) OnProjectTypeChanged(ctx context.Context, folder *entry.FolderEntry) error {
	return h.Fn(ctx, folder)
}

// ProjectCreatedFunc is a ProjectCreatedHandler built from a function.
type ProjectCreatedFunc struct {
	Type string
	Fn   func(ctx context.Context, folder *entry.FolderEntry) error
}

func (h ProjectCreatedFunc) ProjectType() string { return h.Type }

func (h ProjectCreatedFunc) OnProjectCreated(ctx context.Context, folder *entry.FolderEntry) error {
	return h.Fn(ctx, folder)
}
