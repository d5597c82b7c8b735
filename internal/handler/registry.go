package handler

import (
	"fmt"
	"sync"
)

type bucket[H Handler] map[string][]H

func (b bucket[H]) add(h H) { b[h.ProjectType()] = append(b[h.ProjectType()], h) }

func (b bucket[H]) get(typeID string) []H { return append([]H(nil), b[typeID]...) }

// Registry maps project type ids to ordered handler lists.
type Registry struct {
	mu sync.RWMutex

	create       bucket[CreateProjectHandler]
	postImport   bucket[PostImportProjectHandler]
	getItem      bucket[GetItemHandler]
	getModules   bucket[GetModulesHandler]
	created      bucket[ProjectCreatedHandler]
	typeChanged  bucket[ProjectTypeChangedHandler]
	createModule bucket[CreateModuleHandler]
	removeModule bucket[RemoveModuleHandler]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		create:       bucket[CreateProjectHandler]{},
		postImport:   bucket[PostImportProjectHandler]{},
		getItem:      bucket[GetItemHandler]{},
		getModules:   bucket[GetModulesHandler]{},
		created:      bucket[ProjectCreatedHandler]{},
		typeChanged:  bucket[ProjectTypeChangedHandler]{},
		createModule: bucket[CreateModuleHandler]{},
		removeModule: bucket[RemoveModuleHandler]{},
	}
}

// Register adds h under every extension point it implements. A value that
// implements none of them is rejected.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := false
	if x, ok := h.(CreateProjectHandler); ok {
		r.create.add(x)
		matched = true
	}
	if x, ok := h.(PostImportProjectHandler); ok {
		r.postImport.add(x)
		matched = true
	}
	if x, ok := h.(GetItemHandler); ok {
		r.getItem.add(x)
		matched = true
	}
	if x, ok := h.(GetModulesHandler); ok {
		r.getModules.add(x)
		matched = true
	}
	if x, ok := h.(ProjectCreatedHandler); ok {
		r.created.add(x)
		matched = true
	}
	if x, ok := h.(ProjectTypeChangedHandler); ok {
		r.typeChanged.add(x)
		matched = true
	}
	if x, ok := h.(CreateModuleHandler); ok {
		r.createModule.add(x)
		matched = true
	}
	if x, ok := h.(RemoveModuleHandler); ok {
		r.removeModule.add(x)
		matched = true
	}
	if !matched {
		return fmt.Errorf("handler %T for %s implements no extension point", h, h.ProjectType())
	}
	return nil
}

func read[H Handler](r *Registry, b bucket[H], typeID string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return b.get(typeID)
}

func (r *Registry) CreateProject(typeID string) []CreateProjectHandler {
	return read(r, r.create, typeID)
}

func (r *Registry) PostImport(typeID string) []PostImportProjectHandler {
	return read(r, r.postImport, typeID)
}

func (r *Registry) GetItem(typeID string) []GetItemHandler {
	return read(r, r.getItem, typeID)
}

func (r *Registry) GetModules(typeID string) []GetModulesHandler {
	return read(r, r.getModules, typeID)
}

func (r *Registry) ProjectCreated(typeID string) []ProjectCreatedHandler {
	return read(r, r.created, typeID)
}

func (r *Registry) ProjectTypeChanged(typeID string) []ProjectTypeChangedHandler {
	return read(r, r.typeChanged, typeID)
}

func (r *Registry) CreateModule(typeID string) []CreateModuleHandler {
	return read(r, r.createModule, typeID)
}

func (r *Registry) RemoveModule(typeID string) []RemoveModuleHandler {
	return read(r, r.removeModule, typeID)
}
