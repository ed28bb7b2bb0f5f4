package validate

import (
	"fmt"
	"strings"

	"modelql/internal/model"
	"modelql/internal/store"
)

var whereOps = map[string]store.Op{
	"eq":         store.OpEq,
	"ne":         store.OpNe,
	"lt":         store.OpLt,
	"lte":        store.OpLe,
	"gt":         store.OpGt,
	"gte":        store.OpGe,
	"in":         store.OpIn,
	"contains":   store.OpContains,
	"startsWith": store.OpStartsWith,
	"endsWith":   store.OpEndsWith,
}

// WhereValidator translates a filter-shaped input into a relational
// predicate tree limited to fields that exist on the entity. Filtering on
// associated entities' fields is not supported here; only association
// selection is planned.
type WhereValidator struct {
	entity *model.Entity
}

// Validate parses a where input. A nil or empty input matches everything.
func (v *WhereValidator) Validate(input map[string]any) (store.Filter, error) {
	filter := store.Filter{}
	for name, raw := range input {
		switch name {
		case "AND", "OR":
			items, ok := raw.([]any)
			if !ok {
				return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "must be a list of filters"}
			}
			branches := make([]store.Filter, 0, len(items))
			for _, item := range items {
				sub, ok := item.(map[string]any)
				if !ok {
					return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "filter items must be objects"}
				}
				branch, err := v.Validate(sub)
				if err != nil {
					return store.Filter{}, err
				}
				branches = append(branches, branch)
			}
			if name == "AND" {
				filter.And = append(filter.And, branches...)
			} else {
				filter.Or = append(filter.Or, branches...)
			}
		default:
			if _, ok := v.entity.Association(name); ok {
				return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "filtering on associations is not supported"}
			}
			if _, ok := v.entity.Field(name); !ok {
				return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "unknown field"}
			}
			conds, err := v.fieldConds(name, raw)
			if err != nil {
				return store.Filter{}, err
			}
			filter.Conds = append(filter.Conds, conds...)
		}
	}
	return filter, nil
}

func (v *WhereValidator) fieldConds(field string, raw any) ([]store.Cond, error) {
	opMap, ok := raw.(map[string]any)
	if !ok {
		// Bare values are equality shorthand.
		return []store.Cond{{Field: field, Op: store.OpEq, Value: raw}}, nil
	}
	conds := make([]store.Cond, 0, len(opMap))
	for opName, value := range opMap {
		op, ok := whereOps[opName]
		if !ok {
			return nil, &Error{Entity: v.entity.Name, Field: field, Constraint: fmt.Sprintf("unknown filter operator %q", opName)}
		}
		if op == store.OpIn {
			if _, isList := value.([]any); !isList {
				return nil, &Error{Entity: v.entity.Name, Field: field, Constraint: "in filter requires a list"}
			}
		}
		conds = append(conds, store.Cond{Field: field, Op: op, Value: value})
	}
	return conds, nil
}

// WhereUniqueValidator checks a unique filter: exactly one uniquely-tagged
// field (or the identifier) must be present.
type WhereUniqueValidator struct {
	entity *model.Entity
}

// Validate parses a unique filter into an equality predicate.
func (v *WhereUniqueValidator) Validate(input map[string]any) (store.Filter, error) {
	if len(input) == 0 {
		return store.Filter{}, &Error{Entity: v.entity.Name, Constraint: "unique filter is empty"}
	}
	unique := make(map[string]struct{})
	for _, name := range v.entity.UniqueFields() {
		unique[name] = struct{}{}
	}

	var selected string
	var value any
	for name, raw := range input {
		if _, ok := v.entity.Field(name); !ok {
			return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "unknown field"}
		}
		if _, ok := unique[name]; !ok {
			return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "field is not unique"}
		}
		if selected != "" {
			return store.Filter{}, &Error{Entity: v.entity.Name, Field: name, Constraint: "unique filter must name exactly one field"}
		}
		selected = name
		value = raw
	}
	if value == nil {
		return store.Filter{}, &Error{Entity: v.entity.Name, Field: selected, Constraint: "unique filter value cannot be null"}
	}
	return store.Eq(selected, value), nil
}

// OrderByValidator restricts sorting to scalar, non-association fields. The
// input uses the generated enum form `<field>_ASC` / `<field>_DESC`.
type OrderByValidator struct {
	entity *model.Entity
}

// Validate parses an orderBy value. Empty input means no ordering.
func (v *OrderByValidator) Validate(orderBy string) ([]store.Order, error) {
	if orderBy == "" {
		return nil, nil
	}
	var field string
	var desc bool
	switch {
	case strings.HasSuffix(orderBy, "_ASC"):
		field = strings.TrimSuffix(orderBy, "_ASC")
	case strings.HasSuffix(orderBy, "_DESC"):
		field = strings.TrimSuffix(orderBy, "_DESC")
		desc = true
	default:
		return nil, &Error{Entity: v.entity.Name, Field: orderBy, Constraint: "orderBy must end in _ASC or _DESC"}
	}
	if _, ok := v.entity.Association(field); ok {
		return nil, &Error{Entity: v.entity.Name, Field: field, Constraint: "associations are not sortable"}
	}
	if _, ok := v.entity.Field(field); !ok {
		return nil, &Error{Entity: v.entity.Name, Field: field, Constraint: "unknown field"}
	}
	return []store.Order{{Field: field, Desc: desc}}, nil
}
