package projecttype

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML document declaring project types.
//
//	types:
//	  - id: maven
//	    displayName: Maven
//	    primaryable: true
//	    parents: [java]
//	    attributes:
//	      - name: artifactId
//	        file: .artifact
//	        required: true
type File struct {
	Types []TypeSpec `yaml:"types"`
}

// TypeSpec declares one project type.
type TypeSpec struct {
	ID          string          `yaml:"id"`
	DisplayName string          `yaml:"displayName"`
	Primaryable bool            `yaml:"primaryable"`
	Mixable     bool            `yaml:"mixable"`
	Persisted   *bool           `yaml:"persisted"`
	Parents     []string        `yaml:"parents"`
	Attributes  []AttributeSpec `yaml:"attributes"`
}

// AttributeSpec declares one attribute. Exactly one of Value, Marker and
// File may be set; none makes a stored variable.
type AttributeSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Required    bool     `yaml:"required"`
	Value       []string `yaml:"value"`

	// Marker makes the attribute required-detectable: the type matches
	// folders containing this path, and the attribute reports Values.
	Marker string   `yaml:"marker"`
	Values []string `yaml:"values"`

	// File stores the attribute as lines of a file below the project.
	File string `yaml:"file"`
}

// ParseYAML decodes project type definitions.
func ParseYAML(r io.Reader) ([]*TypeDef, error) {
	var doc File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode project types: %w", err)
	}

	defs := make([]*TypeDef, 0, len(doc.Types))
	for _, ts := range doc.Types {
		def, err := ts.build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFile reads project type definitions from a YAML file.
func LoadFile(path string) ([]*TypeDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open project types file: %w", err)
	}
	defer f.Close()
	return ParseYAML(f)
}

func (ts TypeSpec) build() (*TypeDef, error) {
	name := ts.DisplayName
	if name == "" {
		name = ts.ID
	}
	b := NewTypeDef(ts.ID, name).Parents(ts.Parents...)
	if ts.Primaryable {
		b.Primaryable()
	}
	if ts.Mixable {
		b.Mixable()
	}
	if ts.Persisted != nil && !*ts.Persisted {
		b.Transient()
	}

	for _, as := range ts.Attributes {
		set := 0
		for _, present := range []bool{len(as.Value) > 0, as.Marker != "", as.File != ""} {
			if present {
				set++
			}
		}
		if set > 1 {
			return nil, fmt.Errorf("type %s attribute %s: value, marker and file are exclusive", ts.ID, as.Name)
		}
		switch {
		case len(as.Value) > 0:
			b.Constant(as.Name, as.Description, as.Value...)
		case as.Marker != "":
			values := as.Values
			if len(values) == 0 {
				values = []string{as.Marker}
			}
			b.Provided(as.Name, as.Description, as.Required, MarkerFileProvider(as.Marker, values...))
		case as.File != "":
			b.Provided(as.Name, as.Description, as.Required, FileContentProvider(as.File))
		default:
			b.Variable(as.Name, as.Description, as.Required)
		}
	}
	return b.Build(), nil
}
