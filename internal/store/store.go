// Package store defines the relational data-access contract the CRUD engine
// issues all persistence calls through. Implementations project the requested
// attributes, eager-load the requested associations, and own all SQL; the
// engine never builds queries itself.
package store

import (
	"context"
	"errors"

	"modelql/internal/model"
	"modelql/internal/selection"
)

// ErrNotFound is returned by FindOne when no row matches the filter.
var ErrNotFound = errors.New("record not found")

// Op is a leaf filter operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpLt         Op = "lt"
	OpLe         Op = "le"
	OpGt         Op = "gt"
	OpGe         Op = "ge"
	OpIn         Op = "in"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

// Cond is a single field condition.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a relational predicate tree. Conds and And branches are
// AND-combined; each Or list is OR-combined internally and then AND-combined
// with the rest. The zero Filter matches everything.
type Filter struct {
	Conds []Cond
	And   []Filter
	Or    []Filter
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return len(f.Conds) == 0 && len(f.And) == 0 && len(f.Or) == 0
}

// Eq builds a single-condition equality filter.
func Eq(field string, value any) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpEq, Value: value}}}
}

// Order is one ordering term.
type Order struct {
	Field string
	Desc  bool
}

// Store is the persistence surface consumed by the orchestrator. Attribute
// projection and nested eager-loads follow the fetch plan; implementations
// may fetch additional key columns needed to stitch associations.
type Store interface {
	FindOne(ctx context.Context, entity *model.Entity, filter Filter, plan *selection.FetchPlan) (model.Record, error)
	FindAll(ctx context.Context, entity *model.Entity, filter Filter, plan *selection.FetchPlan, order []Order, limit, offset int) ([]model.Record, error)
	Count(ctx context.Context, entity *model.Entity, filter Filter) (int64, error)
	CreateOne(ctx context.Context, entity *model.Entity, payload model.Record, plan *selection.FetchPlan) (model.Record, error)
	UpdateOne(ctx context.Context, entity *model.Entity, filter Filter, changes model.Record, plan *selection.FetchPlan, known model.Record) (model.Record, error)
	DeleteOne(ctx context.Context, entity *model.Entity, filter Filter) error
	DeleteMany(ctx context.Context, entity *model.Entity, filter Filter) (int64, error)
}
