package selection

import (
	"fmt"

	"modelql/internal/model"
)

// FetchPlan is the relational shape of a resolved selection: scalar
// attributes to project plus associations to eager-load, each with its own
// nested plan.
type FetchPlan struct {
	Attributes []string
	Includes   []Include
}

// Include names an association to eager-load. It is a struct rather than a
// bare pair so a relation-filter predicate can be added per include later
// without restructuring the plan.
type Include struct {
	Association string
	Plan        *FetchPlan
}

// HasAttribute reports whether the plan projects the named attribute.
func (p *FetchPlan) HasAttribute(name string) bool {
	for _, attr := range p.Attributes {
		if attr == name {
			return true
		}
	}
	return false
}

// Include returns the include for an association name.
func (p *FetchPlan) Include(name string) (Include, bool) {
	for _, inc := range p.Includes {
		if inc.Association == name {
			return inc, true
		}
	}
	return Include{}, false
}

// Resolver partitions selection trees into fetch plans using entity metadata.
// It performs no I/O; an unknown name is a contract violation by the caller
// (selection trees come from schema-validated requests), surfaced as an error
// rather than silently dropped.
type Resolver struct {
	registry *model.Registry
}

// NewResolver returns a resolver over the given registry.
func NewResolver(registry *model.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve converts a selection tree into a fetch plan for an entity. The
// extra tree, when non-empty, is merged into the client tree before
// resolution so authorization-required fields flow through the same
// recursive partitioning; resolving the same inputs twice yields the same
// plan.
func (r *Resolver) Resolve(tree *Tree, entity *model.Entity, extra *Tree) (*FetchPlan, error) {
	merged := tree.Merge(extra)
	return r.resolve(merged, entity)
}

func (r *Resolver) resolve(tree *Tree, entity *model.Entity) (*FetchPlan, error) {
	plan := &FetchPlan{}
	for _, name := range tree.Names() {
		if assoc, ok := entity.Association(name); ok {
			target, ok := r.registry.Entity(assoc.Target)
			if !ok {
				return nil, fmt.Errorf("association %s.%s targets unknown entity %s", entity.Name, name, assoc.Target)
			}
			child := tree.Child(name)
			if child.Empty() {
				// Selecting an association without subfields still needs a
				// usable nested row; fetch the target identifier.
				child = FromNames(target.IDField())
			}
			nested, err := r.resolve(child, target)
			if err != nil {
				return nil, err
			}
			plan.Includes = append(plan.Includes, Include{Association: name, Plan: nested})
			continue
		}
		if _, ok := entity.Field(name); !ok {
			return nil, fmt.Errorf("entity %s has no field or association %s", entity.Name, name)
		}
		if !plan.HasAttribute(name) {
			plan.Attributes = append(plan.Attributes, name)
		}
	}
	return plan, nil
}
