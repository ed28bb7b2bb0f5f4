package model

import "fmt"

// Record is a typed row value keyed by field name. Construction validates
// every key against the entity's field and association sets, so downstream
// code never dispatches over unchecked maps. Association values hold a nested
// Record (to-one) or []Record (to-many).
type Record struct {
	entity *Entity
	values map[string]any
}

// NewRecord builds a record for an entity from raw values. Unknown keys fail.
func NewRecord(e *Entity, values map[string]any) (Record, error) {
	for name, value := range values {
		if _, ok := e.Field(name); ok {
			continue
		}
		if assoc, ok := e.Association(name); ok {
			switch value.(type) {
			case Record, []Record, nil:
			default:
				return Record{}, fmt.Errorf("entity %s: association %s value must be a record", e.Name, assoc.Name)
			}
			continue
		}
		return Record{}, fmt.Errorf("entity %s has no field %s", e.Name, name)
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Record{entity: e, values: copied}, nil
}

// Entity returns the entity this record belongs to.
func (r Record) Entity() *Entity {
	return r.entity
}

// Get returns the value for a field or association name and whether it was
// fetched. Absence is distinct from a fetched NULL.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the field was fetched on this record.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// ID returns the identifier value, if fetched.
func (r Record) ID() (any, bool) {
	if r.entity == nil {
		return nil, false
	}
	return r.Get(r.entity.IDField())
}

// Values returns a copy of the record's values.
func (r Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Zero reports whether the record is the zero value (no entity attached).
func (r Record) Zero() bool {
	return r.entity == nil
}
