package authz

import "fmt"

// DeniedError reports that no predicate in a category's rule list was
// satisfied. It carries the entity and category but never record contents, so
// surfacing it cannot leak data the caller was not allowed to read.
type DeniedError struct {
	Entity   string
	Category Category
	Reason   string
}

func (e *DeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("not authorized to %s %s: %s", e.Category, e.Entity, e.Reason)
	}
	return fmt.Sprintf("not authorized to %s %s", e.Category, e.Entity)
}

// ConfigError is a fatal schema-authoring defect: a rule references a field
// that does not exist or was not fetched. It is never downgraded to a denial
// so misconfigured rules fail loudly instead of silently granting or hiding
// data.
type ConfigError struct {
	Entity string
	Rule   string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("authorization rule %q on %s: %s", e.Rule, e.Entity, e.Detail)
}
