package authz

import (
	"fmt"
	"strconv"

	"modelql/internal/identity"
	"modelql/internal/model"
	"modelql/internal/selection"
)

// Rules is the compiled rule set of one entity. Compilation happens once at
// schema load; evaluation is pure and touches only the supplied data.
type Rules struct {
	entity     *model.Entity
	byCategory map[Category][]predicate
	required   map[Category]*selection.Tree
}

// Compile builds the predicate AST for an entity's declarative rule sources.
// Invalid rules surface as ConfigError at load time, not per request.
func Compile(registry *model.Registry, entity *model.Entity) (*Rules, error) {
	sources := map[Category][]string{
		Create: entity.Rules.Create,
		Read:   entity.Rules.Read,
		Update: entity.Rules.Update,
		Delete: entity.Rules.Delete,
	}

	rules := &Rules{
		entity:     entity,
		byCategory: make(map[Category][]predicate, len(sources)),
		required:   make(map[Category]*selection.Tree, len(sources)),
	}
	for _, category := range Categories {
		preds := make([]predicate, 0, len(sources[category]))
		required := selection.NewTree()
		for _, src := range sources[category] {
			pred, err := compileRule(registry, entity, src)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
			if cmp, ok := pred.(*comparePredicate); ok {
				for _, path := range cmp.recordPaths() {
					if len(path) == 1 {
						required.Add(path[0], nil)
					} else {
						required.Add(path[0], selection.FromNames(path[1]))
					}
				}
			}
		}
		rules.byCategory[category] = preds
		rules.required[category] = required
	}
	return rules, nil
}

// RequiredFields returns the selection fragment every predicate of the
// category needs. The fragment is merged into fetch plans ahead of querying
// so predicates never evaluate against missing data.
func (r *Rules) RequiredFields(category Category) *selection.Tree {
	if required, ok := r.required[category]; ok {
		return required
	}
	return selection.NewTree()
}

// Authorize evaluates the OR-combined predicate list for a category. A nil
// error is a grant. An empty rule list denies: access is granted by rules,
// never by their absence. For CREATE no record exists yet, so record is the
// zero Record and expression predicates read the proposed payload instead.
func (r *Rules) Authorize(category Category, caller identity.Caller, record model.Record, proposed model.Record) error {
	preds := r.byCategory[category]
	for _, pred := range preds {
		granted, err := r.evaluate(pred, caller, record, proposed)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}
	}
	return &DeniedError{Entity: r.entity.Name, Category: category}
}

// AuthorizeAll applies Authorize to every record independently; a single
// denial fails the whole batch so multi-record mutations are all-or-nothing.
func (r *Rules) AuthorizeAll(category Category, caller identity.Caller, records []model.Record, proposed model.Record) error {
	for _, record := range records {
		if err := r.Authorize(category, caller, record, proposed); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rules) evaluate(pred predicate, caller identity.Caller, record, proposed model.Record) (bool, error) {
	switch p := pred.(type) {
	case *rolePredicate:
		return caller.Group == p.group, nil
	case *comparePredicate:
		left, ok, err := r.resolveOperand(p, p.left, caller, record, proposed)
		if err != nil || !ok {
			return false, err
		}
		right, ok, err := r.resolveOperand(p, p.right, caller, record, proposed)
		if err != nil || !ok {
			return false, err
		}
		return compare(left, p.op, right), nil
	default:
		return false, &ConfigError{Entity: r.entity.Name, Rule: pred.source(), Detail: "unknown predicate kind"}
	}
}

// resolveOperand produces the concrete value of one comparison side. The
// boolean result distinguishes "value absent, predicate cannot hold" from an
// authoring defect, which comes back as ConfigError.
func (r *Rules) resolveOperand(pred *comparePredicate, o operand, caller identity.Caller, record, proposed model.Record) (any, bool, error) {
	switch o.kind {
	case operandLiteral:
		return o.literal, true, nil
	case operandCaller:
		value, ok := caller.Attr(o.path[0])
		return value, ok, nil
	case operandRecord:
		subject := record
		fromProposed := false
		if subject.Zero() {
			subject = proposed
			fromProposed = true
		}
		if subject.Zero() {
			return nil, false, &ConfigError{
				Entity: r.entity.Name,
				Rule:   pred.source(),
				Detail: "no record available for placeholder evaluation",
			}
		}
		value, ok := subject.Get(o.path[0])
		if !ok {
			if fromProposed {
				// Payloads are caller-supplied; an absent optional field is
				// not a schema defect, the predicate simply cannot hold.
				return nil, false, nil
			}
			return nil, false, &ConfigError{
				Entity: r.entity.Name,
				Rule:   pred.source(),
				Detail: fmt.Sprintf("field %s was not fetched for rule evaluation", o.path[0]),
			}
		}
		if len(o.path) == 1 {
			return value, true, nil
		}
		nested, ok := value.(model.Record)
		if !ok {
			if value == nil {
				return nil, false, nil
			}
			return nil, false, &ConfigError{
				Entity: r.entity.Name,
				Rule:   pred.source(),
				Detail: fmt.Sprintf("association %s was not fetched as a record", o.path[0]),
			}
		}
		nestedValue, ok := nested.Get(o.path[1])
		if !ok {
			return nil, false, &ConfigError{
				Entity: r.entity.Name,
				Rule:   pred.source(),
				Detail: fmt.Sprintf("field %s.%s was not fetched for rule evaluation", o.path[0], o.path[1]),
			}
		}
		return nestedValue, true, nil
	}
	return nil, false, &ConfigError{Entity: r.entity.Name, Rule: pred.source(), Detail: "unknown operand kind"}
}

// compare applies the operator over loosely-typed values. Identifier values
// cross type boundaries routinely (JSON numbers, SQL integers, string IDs),
// so numeric-looking strings compare numerically.
func compare(left any, op Operator, right any) bool {
	if ln, lok := toFloat(left); lok {
		if rn, rok := toFloat(right); rok {
			switch op {
			case OpEq:
				return ln == rn
			case OpNe:
				return ln != rn
			case OpLt:
				return ln < rn
			case OpLe:
				return ln <= rn
			case OpGt:
				return ln > rn
			case OpGe:
				return ln >= rn
			}
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case OpEq:
			return ls == rs
		case OpNe:
			return ls != rs
		case OpLt:
			return ls < rs
		case OpLe:
			return ls <= rs
		case OpGt:
			return ls > rs
		case OpGe:
			return ls >= rs
		}
	}
	switch op {
	case OpEq:
		return left == right
	case OpNe:
		return left != right
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
