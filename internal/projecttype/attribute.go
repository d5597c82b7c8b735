package projecttype

import (
	"context"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// ValueProvider computes the values of variable attributes for one
// project folder.
type ValueProvider interface {
	// Values returns the values of attribute name. An error means the value
	// could not be computed for this folder.
	Values(ctx context.Context, name string) ([]string, error)

	// SetValues writes values back. Read-only providers return an error
	// matching ErrReadOnlyProvider.
	SetValues(ctx context.Context, name string, values []string) error
}

// ValueProviderFactory binds a provider to a project folder.
type ValueProviderFactory interface {
	NewInstance(folder *entry.FolderEntry) ValueProvider
}

// FactoryFunc adapts a function to ValueProviderFactory.
type FactoryFunc func(folder *entry.FolderEntry) ValueProvider

// NewInstance calls f(folder).
func (f FactoryFunc) NewInstance(folder *entry.FolderEntry) ValueProvider { return f(folder) }

// AttributeKind tells constants from variables.
type AttributeKind int

const (
	Constant AttributeKind = iota
	Variable
)

// Attribute is one attribute definition of a project type. Constants carry
// their values; variables are either stored with the project configuration
// or, when Factory is set, computed from the project folder.
type Attribute struct {
	Name        string
	Description string
	Required    bool
	Kind        AttributeKind
	Values      []string
	Factory     ValueProviderFactory

	// ProjectType is the id of the type that declared the attribute.
	ProjectType string
}

// IsVariable reports whether the attribute value varies per project.
func (a *Attribute) IsVariable() bool { return a.Kind == Variable }

// IsProvided reports whether the attribute value comes from a provider.
func (a *Attribute) IsProvided() bool { return a.Kind == Variable && a.Factory != nil }

// IsStored reports whether the attribute value is kept in the persisted
// project configuration.
func (a *Attribute) IsStored() bool { return a.Kind == Variable && a.Factory == nil }

func (a *Attribute) clone() *Attribute {
	c := *a
	c.Values = append([]string(nil), a.Values...)
	return &c
}
