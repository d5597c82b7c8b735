package projecttype

import (
	"sort"
)

// TypeDef defines a project type. A TypeDef is immutable once registered.
type TypeDef struct {
	ID          string
	DisplayName string
	Primaryable bool
	Mixable     bool

	// Persisted types are written into the project configuration when used
	// as mixins. Non-persisted (transient) types are only detected live.
	Persisted bool

	Parents []string

	attributes []*Attribute
	ancestors  []string
}

// Attributes returns the attribute definitions in declaration order,
// including those inherited from parents.
func (d *TypeDef) Attributes() []*Attribute {
	return append([]*Attribute(nil), d.attributes...)
}

// Attribute returns the named attribute definition or nil.
func (d *TypeDef) Attribute(name string) *Attribute {
	for _, a := range d.attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Ancestors returns the ids of all parent types, nearest first.
func (d *TypeDef) Ancestors() []string {
	return append([]string(nil), d.ancestors...)
}

// IsTypeOf reports whether d is id or inherits from it.
func (d *TypeDef) IsTypeOf(id string) bool {
	if d.ID == id {
		return true
	}
	for _, a := range d.ancestors {
		if a == id {
			return true
		}
	}
	return false
}

func (d *TypeDef) String() string { return d.ID }

// Builder assembles a TypeDef.
//
//	def := projecttype.NewTypeDef("maven", "Maven").
//		Primaryable().
//		Constant("language", "", "java").
//		Provided("artifactId", "", true, projecttype.FileContentProvider(".artifact")).
//		Build()
type Builder struct {
	def *TypeDef
}

// NewTypeDef starts a persisted type that is neither primaryable nor
// mixable until marked so.
func NewTypeDef(id, displayName string) *Builder {
	return &Builder{def: &TypeDef{ID: id, DisplayName: displayName, Persisted: true}}
}

// Primaryable allows the type as a project's primary type.
func (b *Builder) Primaryable() *Builder {
	b.def.Primaryable = true
	return b
}

// Mixable allows the type as a mixin.
func (b *Builder) Mixable() *Builder {
	b.def.Mixable = true
	return b
}

// Transient marks the type as detected-only; it is never persisted into a
// project's mixin list.
func (b *Builder) Transient() *Builder {
	b.def.Persisted = false
	return b
}

// Parents declares parent types whose attributes are inherited.
func (b *Builder) Parents(ids ...string) *Builder {
	b.def.Parents = append(b.def.Parents, ids...)
	return b
}

// Constant adds a constant attribute.
func (b *Builder) Constant(name, description string, values ...string) *Builder {
	return b.add(&Attribute{Name: name, Description: description, Kind: Constant, Values: values})
}

// Variable adds a variable attribute stored with the project configuration.
func (b *Builder) Variable(name, description string, required bool) *Builder {
	return b.add(&Attribute{Name: name, Description: description, Kind: Variable, Required: required})
}

// Provided adds a variable attribute computed by factory.
func (b *Builder) Provided(name, description string, required bool, factory ValueProviderFactory) *Builder {
	return b.add(&Attribute{Name: name, Description: description, Kind: Variable, Required: required, Factory: factory})
}

func (b *Builder) add(a *Attribute) *Builder {
	a.ProjectType = b.def.ID
	b.def.attributes = append(b.def.attributes, a)
	return b
}

// Build returns the definition. Validation happens on registration.
func (b *Builder) Build() *TypeDef {
	d := *b.def
	d.Parents = append([]string(nil), b.def.Parents...)
	d.attributes = make([]*Attribute, len(b.def.attributes))
	for i, a := range b.def.attributes {
		d.attributes[i] = a.clone()
	}
	return &d
}

func sortByID(defs []*TypeDef) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}
