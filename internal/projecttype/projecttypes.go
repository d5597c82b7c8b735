package projecttype

import (
	"context"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
)

// ProjectTypes is the resolved set of types applying to one project: one
// primary type, the persisted mixins, and any transient types detected on
// the live folder.
type ProjectTypes struct {
	path      string
	primary   *TypeDef
	mixins    map[string]*TypeDef
	mixinIDs  []string
	transient map[string]*TypeDef
}

// NewProjectTypes resolves primaryID and mixinIDs against reg. An empty
// primaryID resolves to the blank type. Requested ids equal to the primary
// are ignored; unknown ids are NotFound; ids of types that cannot be mixed
// in are a ProjectTypeConstraint violation. Non-persisted mixins are kept
// out of Mixins and reported by Transient instead.
func NewProjectTypes(path, primaryID string, mixinIDs []string, reg *Registry) (*ProjectTypes, error) {
	if primaryID == "" {
		primaryID = BlankTypeID
	}
	primary, err := reg.Get(primaryID)
	if err != nil {
		return nil, err
	}
	if !primary.Primaryable {
		return nil, apperr.Constraintf("project type %s of %s cannot be a primary type", primaryID, path)
	}

	pt := &ProjectTypes{
		path:      path,
		primary:   primary,
		mixins:    make(map[string]*TypeDef),
		transient: make(map[string]*TypeDef),
	}
	for _, id := range mixinIDs {
		if id == primaryID {
			continue
		}
		mixin, err := reg.Get(id)
		if err != nil {
			return nil, apperr.NotFoundf("mixin %s requested for %s is not registered", id, path)
		}
		if !mixin.Mixable {
			return nil, apperr.Constraintf("project type %s is not mixable; %s already has primary type %s",
				id, path, primaryID)
		}
		if !mixin.Persisted {
			pt.transient[id] = mixin
			continue
		}
		if _, dup := pt.mixins[id]; !dup {
			pt.mixins[id] = mixin
			pt.mixinIDs = append(pt.mixinIDs, id)
		}
	}

	if _, err := pt.Attributes(); err != nil {
		return nil, err
	}
	return pt, nil
}

// Path returns the project path the types were resolved for.
func (pt *ProjectTypes) Path() string { return pt.path }

// Primary returns the primary type.
func (pt *ProjectTypes) Primary() *TypeDef { return pt.primary }

// Mixins returns the persisted mixins keyed by id.
func (pt *ProjectTypes) Mixins() map[string]*TypeDef {
	out := make(map[string]*TypeDef, len(pt.mixins))
	for id, d := range pt.mixins {
		out[id] = d
	}
	return out
}

// MixinIDs returns the persisted mixin ids in request order.
func (pt *ProjectTypes) MixinIDs() []string {
	return append([]string(nil), pt.mixinIDs...)
}

// Transient returns the non-persisted types applying to the project.
func (pt *ProjectTypes) Transient() map[string]*TypeDef {
	out := make(map[string]*TypeDef, len(pt.transient))
	for id, d := range pt.transient {
		out[id] = d
	}
	return out
}

// All returns the primary type followed by persisted mixins and transient
// types.
func (pt *ProjectTypes) All() []*TypeDef {
	out := []*TypeDef{pt.primary}
	for _, id := range pt.mixinIDs {
		out = append(out, pt.mixins[id])
	}
	var transient []*TypeDef
	for _, d := range pt.transient {
		transient = append(transient, d)
	}
	sortByID(transient)
	return append(out, transient...)
}

// Has reports whether id is the primary type, a mixin, a transient type, or
// an ancestor of one of them.
func (pt *ProjectTypes) Has(id string) bool {
	for _, d := range pt.All() {
		if d.IsTypeOf(id) {
			return true
		}
	}
	return false
}

// Attributes merges the attribute definitions of all applying types. Two
// types declaring the same attribute name is a ProjectTypeConstraint
// violation unless both inherited it from the same type.
func (pt *ProjectTypes) Attributes() (map[string]*Attribute, error) {
	out := make(map[string]*Attribute)
	for _, d := range pt.All() {
		for _, a := range d.attributes {
			if prev, ok := out[a.Name]; ok {
				if prev.ProjectType != a.ProjectType {
					return nil, apperr.Constraintf("attribute %s of %s is declared by both %s and %s",
						a.Name, pt.path, prev.ProjectType, a.ProjectType)
				}
				continue
			}
			out[a.Name] = a
		}
	}
	return out, nil
}

// AddTransient estimates every registered transient mixable type against
// folder and adds those that match.
func (pt *ProjectTypes) AddTransient(ctx context.Context, folder *entry.FolderEntry, reg *Registry) {
	for _, d := range reg.Sorted() {
		if d.Persisted || !d.Mixable || d.ID == pt.primary.ID {
			continue
		}
		if _, ok := pt.transient[d.ID]; ok {
			continue
		}
		if _, err := Estimate(ctx, folder, d); err != nil {
			continue
		}
		pt.transient[d.ID] = d
		if _, err := pt.Attributes(); err != nil {
			delete(pt.transient, d.ID)
			logging.WithContext(ctx).Warn("transient type clashes with project types",
				zap.String("project", pt.path), zap.String("type", d.ID), zap.Error(err))
		}
	}
}
