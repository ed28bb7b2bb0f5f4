// Package validate derives per-operation payload and filter validators from
// entity field metadata. Validation always completes before any persistence
// call is issued; every violation names the offending field and constraint.
package validate

import (
	"fmt"

	"modelql/internal/model"
)

// Error is a payload or filter violation.
type Error struct {
	Entity     string
	Field      string
	Constraint string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Constraint)
	}
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Constraint)
}

// Inputs bundles the validators of one entity, mirroring the per-entity
// input shapes of the generated mutation surface.
type Inputs struct {
	Create      *CreateValidator
	Update      *UpdateValidator
	Where       *WhereValidator
	WhereUnique *WhereUniqueValidator
	OrderBy     *OrderByValidator
}

// NewInputs derives all validators for an entity.
func NewInputs(entity *model.Entity) *Inputs {
	return &Inputs{
		Create:      &CreateValidator{entity: entity},
		Update:      &UpdateValidator{entity: entity},
		Where:       &WhereValidator{entity: entity},
		WhereUnique: &WhereUniqueValidator{entity: entity},
		OrderBy:     &OrderByValidator{entity: entity},
	}
}

const bytesPerMB = 1 << 20

// checkUpload validates an upload-constrained value: a file descriptor map
// carrying mimetype and size in bytes.
func checkUpload(entity, field string, rule *model.UploadRule, value any) error {
	if rule == nil || value == nil {
		return nil
	}
	desc, ok := value.(map[string]any)
	if !ok {
		if record, isRecord := value.(model.Record); isRecord {
			desc = record.Values()
		} else {
			return &Error{Entity: entity, Field: field, Constraint: "upload value must be a file descriptor"}
		}
	}

	if len(rule.Accept) > 0 {
		mimetype, _ := desc["mimetype"].(string)
		accepted := false
		for _, accept := range rule.Accept {
			if mimetype == accept {
				accepted = true
				break
			}
		}
		if !accepted {
			return &Error{Entity: entity, Field: field, Constraint: fmt.Sprintf("mimetype %q is not accepted", mimetype)}
		}
	}

	if size, ok := numeric(desc["size"]); ok {
		if rule.MinMB > 0 && size < rule.MinMB*bytesPerMB {
			return &Error{Entity: entity, Field: field, Constraint: "file is smaller than the allowed minimum"}
		}
		if rule.MaxMB > 0 && size > rule.MaxMB*bytesPerMB {
			return &Error{Entity: entity, Field: field, Constraint: "file exceeds the allowed maximum size"}
		}
	}
	return nil
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}
