package projecttype

import (
	"context"
	"fmt"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// Estimation is the outcome of estimating one type against a folder.
type Estimation struct {
	Type       string              `json:"type"`
	Matched    bool                `json:"matched"`
	Attributes map[string][]string `json:"attributes"`
	Reason     string              `json:"reason,omitempty"`
}

// Estimate computes every provided attribute of def for folder. A required
// attribute that cannot be computed, or computes to nothing, means folder
// is not of this type and yields a Conflict. Optional attributes that fail
// are left out of the result.
func Estimate(ctx context.Context, folder *entry.FolderEntry, def *TypeDef) (map[string][]string, error) {
	values := make(map[string][]string)
	for _, a := range def.attributes {
		if !a.IsProvided() {
			continue
		}
		v, err := a.Factory.NewInstance(folder).Values(ctx, a.Name)
		if err == nil && len(v) == 0 && a.Required {
			err = fmt.Errorf("no value")
		}
		if err != nil {
			if a.Required {
				return nil, apperr.Wrap(apperr.ErrConflict, err,
					fmt.Sprintf("%s is not a %s project: required attribute %s", folder.Path(), def.ID, a.Name))
			}
			continue
		}
		values[a.Name] = v
	}
	return values, nil
}

// EstimateAll estimates every registered type with at least one provided
// attribute against folder, most specific types first.
func EstimateAll(ctx context.Context, folder *entry.FolderEntry, reg *Registry, transientOnly bool) []Estimation {
	var out []Estimation
	for _, d := range reg.Sorted() {
		if transientOnly && d.Persisted {
			continue
		}
		if !hasProvided(d) {
			continue
		}
		attrs, err := Estimate(ctx, folder, d)
		est := Estimation{Type: d.ID, Matched: err == nil, Attributes: attrs}
		if err != nil {
			est.Attributes = map[string][]string{}
			est.Reason = err.Error()
		}
		out = append(out, est)
	}
	return out
}

func hasProvided(d *TypeDef) bool {
	for _, a := range d.attributes {
		if a.IsProvided() {
			return true
		}
	}
	return false
}
