package model

import "fmt"

// Registry holds all entities of a loaded schema. Register all entities, then
// call Freeze once; afterwards the registry never changes.
type Registry struct {
	entities map[string]*Entity
	order    []string
	frozen   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register adds an entity definition. The entity is indexed and validated for
// internal consistency; cross-entity references are checked by Freeze.
func (r *Registry) Register(e *Entity) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen")
	}
	if e == nil || e.Name == "" {
		return fmt.Errorf("entity must have a name")
	}
	if _, dup := r.entities[e.Name]; dup {
		return fmt.Errorf("duplicate entity %s", e.Name)
	}
	if err := e.index(); err != nil {
		return err
	}
	r.entities[e.Name] = e
	r.order = append(r.order, e.Name)
	return nil
}

// MustRegister is Register for statically-known definitions.
func (r *Registry) MustRegister(e *Entity) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Freeze verifies association targets and keys, then marks the registry
// immutable.
func (r *Registry) Freeze() error {
	for _, name := range r.order {
		e := r.entities[name]
		for _, a := range e.Associations {
			target, ok := r.entities[a.Target]
			if !ok {
				return fmt.Errorf("entity %s: association %s targets unknown entity %s", e.Name, a.Name, a.Target)
			}
			if a.Many {
				if a.RemoteKey == "" {
					return fmt.Errorf("entity %s: to-many association %s has no remote key", e.Name, a.Name)
				}
				if _, ok := target.Field(a.RemoteKey); !ok {
					return fmt.Errorf("entity %s: association %s remote key %s not on %s", e.Name, a.Name, a.RemoteKey, a.Target)
				}
			} else {
				if a.LocalKey == "" {
					return fmt.Errorf("entity %s: to-one association %s has no local key", e.Name, a.Name)
				}
				if _, ok := e.Field(a.LocalKey); !ok {
					return fmt.Errorf("entity %s: association %s local key %s not on %s", e.Name, a.Name, a.LocalKey, e.Name)
				}
			}
		}
	}
	r.frozen = true
	return nil
}

// Entity returns the entity with the given name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns entities in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}
