// Package model holds the schema model registry: entity definitions, field
// metadata, associations, and authorization rule sources. The registry is
// populated once at load time and is read-only afterwards, so it is safe for
// concurrent use without locking.
package model

import "fmt"

// ScalarType identifies the scalar type of a field.
type ScalarType string

const (
	ID       ScalarType = "ID"
	String   ScalarType = "String"
	Int      ScalarType = "Int"
	Float    ScalarType = "Float"
	Boolean  ScalarType = "Boolean"
	DateTime ScalarType = "DateTime"
	Email    ScalarType = "EmailAddress"
	Password ScalarType = "Password"
)

// UploadRule constrains an upload-tagged field: accepted MIME types and a
// size window in megabytes.
type UploadRule struct {
	Accept []string
	MinMB  float64
	MaxMB  float64
}

// Field describes a scalar attribute of an entity.
type Field struct {
	Name     string
	Type     ScalarType
	Nullable bool
	Unique   bool
	// AutoCreatedAt / AutoUpdatedAt mark timestamp fields the store fills in.
	AutoCreatedAt bool
	AutoUpdatedAt bool
	Upload        *UploadRule
}

// AutoGenerated reports whether the field value is produced by the engine
// rather than supplied by callers. Identifier and auto-timestamp fields are
// rejected in mutation payloads.
func (f Field) AutoGenerated() bool {
	return f.Type == ID || f.AutoCreatedAt || f.AutoUpdatedAt
}

// Association is a named edge to another entity. For a to-one edge LocalKey
// names the attribute on this entity holding the target identifier; for a
// to-many edge RemoteKey names the attribute on the target pointing back.
type Association struct {
	Name      string
	Target    string
	Many      bool
	LocalKey  string
	RemoteKey string
	// Upload constrains file-typed edges populated through upload handling.
	Upload *UploadRule
}

// RuleSet carries the declarative authorization rule sources per operation
// category. Each entry is either a group name or a comparison expression
// using $user.<field> and {{field}} placeholders. Entries within a category
// are OR-combined; an empty category denies.
type RuleSet struct {
	Create []string
	Read   []string
	Update []string
	Delete []string
}

// Entity is a schema-defined model type. Immutable after registration.
type Entity struct {
	Name         string
	Fields       []Field
	Associations []Association
	Rules        RuleSet

	fieldsByName map[string]int
	assocsByName map[string]int
	idField      string
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	idx, ok := e.fieldsByName[name]
	if !ok {
		return Field{}, false
	}
	return e.Fields[idx], true
}

// Association returns the association with the given name.
func (e *Entity) Association(name string) (Association, bool) {
	idx, ok := e.assocsByName[name]
	if !ok {
		return Association{}, false
	}
	return e.Associations[idx], true
}

// IDField returns the name of the entity's identifier field.
func (e *Entity) IDField() string {
	return e.idField
}

// UniqueFields returns the names of uniquely-tagged fields, identifier included.
func (e *Entity) UniqueFields() []string {
	names := make([]string, 0, 2)
	for _, f := range e.Fields {
		if f.Unique || f.Type == ID {
			names = append(names, f.Name)
		}
	}
	return names
}

func (e *Entity) index() error {
	e.fieldsByName = make(map[string]int, len(e.Fields))
	e.assocsByName = make(map[string]int, len(e.Associations))
	e.idField = ""
	for i, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field %d has no name", e.Name, i)
		}
		if _, dup := e.fieldsByName[f.Name]; dup {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		e.fieldsByName[f.Name] = i
		if f.Type == ID {
			if e.idField != "" {
				return fmt.Errorf("entity %s: multiple identifier fields (%s, %s)", e.Name, e.idField, f.Name)
			}
			e.idField = f.Name
		}
	}
	if e.idField == "" {
		return fmt.Errorf("entity %s: no identifier field", e.Name)
	}
	for i, a := range e.Associations {
		if a.Name == "" {
			return fmt.Errorf("entity %s: association %d has no name", e.Name, i)
		}
		if _, dup := e.fieldsByName[a.Name]; dup {
			return fmt.Errorf("entity %s: association %s collides with a field", e.Name, a.Name)
		}
		if _, dup := e.assocsByName[a.Name]; dup {
			return fmt.Errorf("entity %s: duplicate association %s", e.Name, a.Name)
		}
		e.assocsByName[a.Name] = i
	}
	return nil
}
