package validate

import "modelql/internal/model"

// CreateValidator checks create payloads: required fields present,
// auto-generated fields absent, upload constraints honored.
type CreateValidator struct {
	entity *model.Entity
}

// Validate checks one create payload.
func (v *CreateValidator) Validate(payload map[string]any) error {
	for name, value := range payload {
		if field, ok := v.entity.Field(name); ok {
			if field.AutoGenerated() {
				return &Error{Entity: v.entity.Name, Field: name, Constraint: "field is auto-generated and cannot be supplied"}
			}
			if err := checkUpload(v.entity.Name, name, field.Upload, value); err != nil {
				return err
			}
			continue
		}
		if assoc, ok := v.entity.Association(name); ok {
			if err := checkUpload(v.entity.Name, name, assoc.Upload, value); err != nil {
				return err
			}
			continue
		}
		return &Error{Entity: v.entity.Name, Field: name, Constraint: "unknown field"}
	}

	for _, field := range v.entity.Fields {
		if field.Nullable || field.AutoGenerated() {
			continue
		}
		if value, ok := payload[field.Name]; !ok || value == nil {
			return &Error{Entity: v.entity.Name, Field: field.Name, Constraint: "required field is missing"}
		}
	}
	return nil
}

// UpdateValidator checks update payloads against the entity and, when known,
// the target record.
type UpdateValidator struct {
	entity *model.Entity
}

// Validate checks an update payload. The record, when not zero, enables
// record-aware constraints; payload fields must exist and be mutable either
// way.
func (v *UpdateValidator) Validate(changes map[string]any, record model.Record) error {
	if len(changes) == 0 {
		return &Error{Entity: v.entity.Name, Constraint: "update payload is empty"}
	}
	for name, value := range changes {
		field, ok := v.entity.Field(name)
		if !ok {
			if assoc, isAssoc := v.entity.Association(name); isAssoc {
				if err := checkUpload(v.entity.Name, name, assoc.Upload, value); err != nil {
					return err
				}
				continue
			}
			return &Error{Entity: v.entity.Name, Field: name, Constraint: "unknown field"}
		}
		if field.AutoGenerated() {
			return &Error{Entity: v.entity.Name, Field: name, Constraint: "field is auto-generated and cannot be modified"}
		}
		if !field.Nullable && value == nil {
			return &Error{Entity: v.entity.Name, Field: name, Constraint: "field cannot be set to null"}
		}
		if err := checkUpload(v.entity.Name, name, field.Upload, value); err != nil {
			return err
		}
	}
	return nil
}
