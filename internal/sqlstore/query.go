package sqlstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"modelql/internal/model"
	"modelql/internal/selection"
	"modelql/internal/sqlutil"
	"modelql/internal/store"
)

func tableName(entity *model.Entity) string {
	return sqlutil.QuoteIdentifier(entity.Name)
}

func column(name string) string {
	return sqlutil.QuoteIdentifier(name)
}

// projectedAttributes returns the columns to select: the plan's attributes,
// the identifier, and the local key of every to-one include. The extra key
// columns let hydration stitch associations without widening the client's
// visible selection.
func projectedAttributes(entity *model.Entity, plan *selection.FetchPlan) []string {
	attrs := make([]string, 0, len(plan.Attributes)+2)
	seen := make(map[string]struct{}, len(plan.Attributes)+2)
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		attrs = append(attrs, name)
	}
	for _, attr := range plan.Attributes {
		add(attr)
	}
	add(entity.IDField())
	for _, inc := range plan.Includes {
		assoc, ok := entity.Association(inc.Association)
		if !ok || assoc.Many || assoc.LocalKey == "" {
			continue
		}
		add(assoc.LocalKey)
	}
	return attrs
}

// compileFilter translates a filter tree into a squirrel condition. A nil
// result means the filter constrains nothing.
func compileFilter(f store.Filter) (sq.Sqlizer, error) {
	if f.Empty() {
		return nil, nil
	}
	parts := make([]sq.Sqlizer, 0, len(f.Conds)+len(f.And)+1)
	for _, cond := range f.Conds {
		compiled, err := compileCond(cond)
		if err != nil {
			return nil, err
		}
		parts = append(parts, compiled)
	}
	for _, branch := range f.And {
		compiled, err := compileFilter(branch)
		if err != nil {
			return nil, err
		}
		if compiled != nil {
			parts = append(parts, compiled)
		}
	}
	if len(f.Or) > 0 {
		or := make(sq.Or, 0, len(f.Or))
		for _, branch := range f.Or {
			compiled, err := compileFilter(branch)
			if err != nil {
				return nil, err
			}
			if compiled != nil {
				or = append(or, compiled)
			}
		}
		if len(or) > 0 {
			parts = append(parts, or)
		}
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return sq.And(parts), nil
}

func compileCond(cond store.Cond) (sq.Sqlizer, error) {
	col := column(cond.Field)
	switch cond.Op {
	case store.OpEq:
		return sq.Eq{col: cond.Value}, nil
	case store.OpNe:
		return sq.NotEq{col: cond.Value}, nil
	case store.OpLt:
		return sq.Lt{col: cond.Value}, nil
	case store.OpLe:
		return sq.LtOrEq{col: cond.Value}, nil
	case store.OpGt:
		return sq.Gt{col: cond.Value}, nil
	case store.OpGe:
		return sq.GtOrEq{col: cond.Value}, nil
	case store.OpIn:
		return sq.Eq{col: cond.Value}, nil
	case store.OpContains:
		return sq.Like{col: "%" + stringValue(cond.Value) + "%"}, nil
	case store.OpStartsWith:
		return sq.Like{col: stringValue(cond.Value) + "%"}, nil
	case store.OpEndsWith:
		return sq.Like{col: "%" + stringValue(cond.Value)}, nil
	}
	return nil, fmt.Errorf("unsupported filter operator %q", cond.Op)
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func orderTerm(o store.Order) string {
	direction := "ASC"
	if o.Desc {
		direction = "DESC"
	}
	return column(o.Field) + " " + direction
}
