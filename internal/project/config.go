// Package project manages workspace projects: typed folders whose
// configuration is persisted in a ConfigStore and whose attributes are
// resolved through the project type registry.
package project

import (
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/importer"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/projecttype"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// DeveloperGroup receives every permission on private projects.
const DeveloperGroup = "workspace/developer"

// Problem codes reported on projects that cannot be fully resolved.
const (
	ProblemNoConfig       = 9
	ProblemTypeResolution = 10
	ProblemAttributeValue = 11
)

// SourceStorage records where a project was imported from.
type SourceStorage = importer.Source

// SourceEstimation is the result of estimating one type against a folder.
type SourceEstimation = projecttype.Estimation

// Config is the persisted configuration of a project. Modules are nested
// project configurations living below the project folder.
type Config struct {
	Name        string              `json:"name"`
	Path        string              `json:"path"`
	Description string              `json:"description,omitempty"`
	Type        string              `json:"type"`
	Mixins      []string            `json:"mixins,omitempty"`
	Attributes  map[string][]string `json:"attributes,omitempty"`
	Modules     []*Config           `json:"modules,omitempty"`
	Source      *SourceStorage      `json:"source,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Mixins = append([]string(nil), c.Mixins...)
	out.Attributes = cloneAttributes(c.Attributes)
	out.Modules = nil
	for _, m := range c.Modules {
		out.Modules = append(out.Modules, m.Clone())
	}
	if c.Source != nil {
		src := *c.Source
		if c.Source.Parameters != nil {
			src.Parameters = make(map[string]string, len(c.Source.Parameters))
			for k, v := range c.Source.Parameters {
				src.Parameters[k] = v
			}
		}
		out.Source = &src
	}
	return &out
}

func cloneAttributes(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// FindModule returns the module at path p anywhere below c, or nil.
func (c *Config) FindModule(p string) *Config {
	for _, m := range c.Modules {
		if m.Path == p {
			return m
		}
		if found := m.FindModule(p); found != nil {
			return found
		}
	}
	return nil
}

// parentOf returns the configuration whose Modules list holds p.
func (c *Config) parentOf(p string) *Config {
	for _, m := range c.Modules {
		if m.Path == p {
			return c
		}
		if found := m.parentOf(p); found != nil {
			return found
		}
	}
	return nil
}

// removeModule drops the module at p and reports whether it was found.
func (c *Config) removeModule(p string) bool {
	parent := c.parentOf(p)
	if parent == nil {
		return false
	}
	for i, m := range parent.Modules {
		if m.Path == p {
			parent.Modules = append(parent.Modules[:i], parent.Modules[i+1:]...)
			return true
		}
	}
	return false
}

// rebase rewrites c and its modules from below oldPrefix to below
// newPrefix.
func (c *Config) rebase(oldPrefix, newPrefix string) {
	c.Path = vfs.Rebase(c.Path, oldPrefix, newPrefix)
	for _, m := range c.Modules {
		m.rebase(oldPrefix, newPrefix)
	}
}

// Problem is a non-fatal issue found while materializing a project.
type Problem struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Project is a materialized project: its configuration with computed
// attributes, visibility and problems.
type Project struct {
	Config
	Visibility string    `json:"visibility"`
	Problems   []Problem `json:"problems,omitempty"`

	types *projecttype.ProjectTypes
}

// Types returns the resolved types of the project.
func (p *Project) Types() *projecttype.ProjectTypes { return p.types }

// Valid reports whether the project has no problems.
func (p *Project) Valid() bool { return len(p.Problems) == 0 }

// Item kinds.
const (
	ItemFile    = "file"
	ItemFolder  = "folder"
	ItemProject = "project"
)

// ItemReference describes a workspace item.
type ItemReference struct {
	Name        string              `json:"name"`
	Path        string              `json:"path"`
	Type        string              `json:"type"`
	MediaType   string              `json:"mediaType"`
	Created     time.Time           `json:"created"`
	Modified    time.Time           `json:"modified"`
	Size        int64               `json:"size,omitempty"`
	Attributes  map[string][]string `json:"attributes,omitempty"`
	Project     string              `json:"project,omitempty"`
	Permissions []string            `json:"permissions,omitempty"`
}

// TreeElement is a node of GetTree output.
type TreeElement struct {
	Node     ItemReference  `json:"node"`
	Children []*TreeElement `json:"children,omitempty"`
}
