// Package projecttype holds project type definitions, their attributes and
// value providers, the registry they live in, and the resolution of a
// project's primary type and mixins.
package projecttype

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
)

// BlankTypeID is the primary type of projects nothing else matches.
const BlankTypeID = "blank"

// Blank returns the built-in blank type definition.
func Blank() *TypeDef {
	return NewTypeDef(BlankTypeID, "Blank").Primaryable().Build()
}

// Registry stores project type definitions by id.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeDef
}

// NewRegistry creates a registry holding the blank type.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*TypeDef)}
	if err := r.Register(Blank()); err != nil {
		panic("projecttype: registering blank type: " + err.Error())
	}
	return r
}

func validate(def *TypeDef) error {
	if def == nil || def.ID == "" {
		return apperr.Serverf("project type has no id")
	}
	seen := make(map[string]bool)
	for _, a := range def.attributes {
		if a.Name == "" {
			return apperr.Serverf("project type %s declares an attribute without a name", def.ID)
		}
		if seen[a.Name] {
			return apperr.Serverf("project type %s declares attribute %s twice", def.ID, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Register adds def. Parents must already be registered; their attributes
// are inherited. A duplicate id is a Conflict.
func (r *Registry) Register(def *TypeDef) error {
	if err := validate(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.ID]; exists {
		return apperr.Conflictf("project type %s is already registered", def.ID)
	}

	stored := *def
	stored.Parents = append([]string(nil), def.Parents...)
	stored.attributes = make([]*Attribute, 0, len(def.attributes))
	for _, a := range def.attributes {
		stored.attributes = append(stored.attributes, a.clone())
	}
	stored.ancestors = nil

	for _, pid := range def.Parents {
		parent, ok := r.types[pid]
		if !ok {
			return apperr.NotFoundf("parent project type %s of %s is not registered", pid, def.ID)
		}
		stored.ancestors = appendUnique(stored.ancestors, pid)
		for _, anc := range parent.ancestors {
			stored.ancestors = appendUnique(stored.ancestors, anc)
		}
		for _, pa := range parent.attributes {
			own := stored.Attribute(pa.Name)
			switch {
			case own == nil:
				stored.attributes = append(stored.attributes, pa.clone())
			case own.ProjectType != pa.ProjectType:
				return apperr.Constraintf("attribute %s of %s clashes between %s and %s",
					pa.Name, def.ID, own.ProjectType, pa.ProjectType)
			}
		}
	}

	r.types[def.ID] = &stored
	logging.Debug("registered project type",
		zap.String("type", def.ID), zap.Bool("primaryable", def.Primaryable), zap.Bool("mixable", def.Mixable))
	return nil
}

// RegisterAll registers defs in order and stops at the first error.
func (r *Registry) RegisterAll(defs ...*TypeDef) error {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Get returns the type registered under id.
func (r *Registry) Get(id string) (*TypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.types[id]; ok {
		return def, nil
	}
	return nil, apperr.NotFoundf("project type %s is not registered", id)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, err := r.Get(id)
	return err == nil
}

// All returns every registered type ordered by id.
func (r *Registry) All() []*TypeDef {
	r.mu.RLock()
	out := make([]*TypeDef, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sortByID(out)
	return out
}

// Sorted returns every registered type with subtypes before their
// parents, so the most specific matching type is found first.
func (r *Registry) Sorted() []*TypeDef {
	out := r.All()
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].ancestors) > len(out[j].ancestors)
	})
	return out
}
