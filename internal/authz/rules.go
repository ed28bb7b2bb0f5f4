// Package authz evaluates category-scoped authorization rule sets against a
// caller identity and concrete records. Rule sources are compiled once at
// schema load into a typed predicate AST; nothing is re-parsed per request.
package authz

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"modelql/internal/model"
)

// Category is the operation category a rule list applies to.
type Category string

const (
	Create Category = "CREATE"
	Read   Category = "READ"
	Update Category = "UPDATE"
	Delete Category = "DELETE"
)

// Categories lists all rule categories in evaluation-independent order.
var Categories = []Category{Create, Read, Update, Delete}

// Operator is the comparison operator of an expression predicate.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op Operator) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// operandKind discriminates the three operand forms of a comparison.
type operandKind int

const (
	operandCaller operandKind = iota // $user.<field>
	operandRecord                    // {{field}} or {{assoc.field}}
	operandLiteral
)

type operand struct {
	kind    operandKind
	path    []string // caller field name, or record field path (depth <= 2)
	literal any
}

// predicate is a compiled authorization predicate.
type predicate interface {
	source() string
}

// rolePredicate grants when the caller's group matches.
type rolePredicate struct {
	group string
	src   string
}

func (p *rolePredicate) source() string { return p.src }

// comparePredicate grants when the comparison holds over caller and record
// attributes.
type comparePredicate struct {
	left  operand
	op    Operator
	right operand
	src   string
}

func (p *comparePredicate) source() string { return p.src }

// recordPaths returns the record field paths the predicate reads.
func (p *comparePredicate) recordPaths() [][]string {
	var paths [][]string
	for _, o := range []operand{p.left, p.right} {
		if o.kind == operandRecord {
			paths = append(paths, o.path)
		}
	}
	return paths
}

var (
	roleSourceRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	placeholderRe = regexp.MustCompile(`^\{\{\s*([A-Za-z][A-Za-z0-9_]*(?:\.[A-Za-z][A-Za-z0-9_]*)?)\s*\}\}$`)
	callerRefRe   = regexp.MustCompile(`^\$user\.([A-Za-z][A-Za-z0-9_]*)$`)
)

// compileRule turns one declarative rule source into a predicate, validating
// every record reference against the entity's schema.
func compileRule(registry *model.Registry, entity *model.Entity, src string) (predicate, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, &ConfigError{Entity: entity.Name, Rule: src, Detail: "empty rule"}
	}

	if roleSourceRe.MatchString(trimmed) {
		return &rolePredicate{group: trimmed, src: src}, nil
	}

	left, op, right, err := splitComparison(trimmed)
	if err != nil {
		return nil, &ConfigError{Entity: entity.Name, Rule: src, Detail: err.Error()}
	}

	leftOp, err := parseOperand(left)
	if err != nil {
		return nil, &ConfigError{Entity: entity.Name, Rule: src, Detail: err.Error()}
	}
	rightOp, err := parseOperand(right)
	if err != nil {
		return nil, &ConfigError{Entity: entity.Name, Rule: src, Detail: err.Error()}
	}

	pred := &comparePredicate{left: leftOp, op: op, right: rightOp, src: src}
	for _, path := range pred.recordPaths() {
		if err := validateRecordPath(registry, entity, path); err != nil {
			return nil, &ConfigError{Entity: entity.Name, Rule: src, Detail: err.Error()}
		}
	}
	return pred, nil
}

func splitComparison(src string) (string, Operator, string, error) {
	// Two-character operators must be matched before their one-character prefixes.
	for _, candidate := range []struct {
		token string
		op    Operator
	}{
		{"==", OpEq}, {"!=", OpNe}, {"<=", OpLe}, {">=", OpGe}, {"<", OpLt}, {">", OpGt},
	} {
		if idx := strings.Index(src, candidate.token); idx > 0 {
			left := strings.TrimSpace(src[:idx])
			right := strings.TrimSpace(src[idx+len(candidate.token):])
			if left == "" || right == "" {
				return "", 0, "", fmt.Errorf("comparison %q is missing an operand", src)
			}
			return left, candidate.op, right, nil
		}
	}
	return "", 0, "", fmt.Errorf("rule %q is neither a group name nor a comparison", src)
}

func parseOperand(src string) (operand, error) {
	if m := callerRefRe.FindStringSubmatch(src); m != nil {
		return operand{kind: operandCaller, path: []string{m[1]}}, nil
	}
	if m := placeholderRe.FindStringSubmatch(src); m != nil {
		return operand{kind: operandRecord, path: strings.Split(m[1], ".")}, nil
	}
	if strings.Contains(src, "{{") || strings.Contains(src, "$user") {
		return operand{}, fmt.Errorf("malformed placeholder %q", src)
	}
	return parseLiteral(src)
}

func parseLiteral(src string) (operand, error) {
	switch {
	case src == "null":
		return operand{kind: operandLiteral, literal: nil}, nil
	case src == "true":
		return operand{kind: operandLiteral, literal: true}, nil
	case src == "false":
		return operand{kind: operandLiteral, literal: false}, nil
	case strings.HasPrefix(src, `"`) && strings.HasSuffix(src, `"`) && len(src) >= 2:
		unquoted, err := strconv.Unquote(src)
		if err != nil {
			return operand{}, fmt.Errorf("malformed string literal %s", src)
		}
		return operand{kind: operandLiteral, literal: unquoted}, nil
	case strings.HasPrefix(src, `'`) && strings.HasSuffix(src, `'`) && len(src) >= 2:
		return operand{kind: operandLiteral, literal: src[1 : len(src)-1]}, nil
	}
	if i, err := strconv.ParseInt(src, 10, 64); err == nil {
		return operand{kind: operandLiteral, literal: i}, nil
	}
	if f, err := strconv.ParseFloat(src, 64); err == nil {
		return operand{kind: operandLiteral, literal: f}, nil
	}
	return operand{}, fmt.Errorf("unrecognized operand %q", src)
}

func validateRecordPath(registry *model.Registry, entity *model.Entity, path []string) error {
	if len(path) == 0 || len(path) > 2 {
		return fmt.Errorf("record reference depth %d is unsupported", len(path))
	}
	head := path[0]
	if len(path) == 1 {
		if _, ok := entity.Field(head); !ok {
			return fmt.Errorf("field %s does not exist on %s", head, entity.Name)
		}
		return nil
	}
	assoc, ok := entity.Association(head)
	if !ok {
		return fmt.Errorf("association %s does not exist on %s", head, entity.Name)
	}
	target, ok := registry.Entity(assoc.Target)
	if !ok {
		return fmt.Errorf("association %s targets unknown entity %s", head, assoc.Target)
	}
	if _, ok := target.Field(path[1]); !ok {
		return fmt.Errorf("field %s does not exist on %s", path[1], assoc.Target)
	}
	return nil
}
