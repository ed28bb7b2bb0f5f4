// Package crud sequences selection resolution, authorization, validation, and
// persistence into the per-entity operation lifecycle. The step order is
// deliberate: attribute resolution precedes authorization so predicates have
// data, authorization precedes validation and persistence so forbidden writes
// never reach them, and mutations against an existing record fetch it before
// authorizing against it.
package crud

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"modelql/internal/authz"
	"modelql/internal/identity"
	"modelql/internal/model"
	"modelql/internal/observability"
	"modelql/internal/selection"
	"modelql/internal/store"
	"modelql/internal/validate"
)

// FindArgs are the arguments of a multi-record read.
type FindArgs struct {
	Where   map[string]any
	OrderBy string
	Limit   int
	Offset  int
}

// Aggregate holds connection-level aggregate values.
type Aggregate struct {
	Count int64
}

// Connection is the result of a count-only connection query.
type Connection struct {
	Aggregate Aggregate
}

// BatchResult reports how many records a batch mutation touched.
type BatchResult struct {
	Count int64
}

// CreateResult is one outcome of a multi-item create. Items fail
// independently; a failed item carries its error alongside its siblings'
// records.
type CreateResult struct {
	Record model.Record
	Err    error
}

// Orchestrator runs the operation lifecycle for one entity. It never issues
// raw queries; all persistence goes through the store.
type Orchestrator struct {
	entity   *model.Entity
	registry *model.Registry
	store    store.Store
	rules    *authz.Rules
	inputs   *validate.Inputs
	resolver *selection.Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.CRUDMetrics
}

// Entity returns the entity this orchestrator serves.
func (o *Orchestrator) Entity() *model.Entity {
	return o.entity
}

// FindOne reads one record by unique filter. The fetch plan carries the
// client selection plus every field READ predicates need.
func (o *Orchestrator) FindOne(ctx context.Context, caller identity.Caller, where map[string]any, sel *selection.Tree) (record model.Record, err error) {
	ctx, finish := o.begin(ctx, "findOne")
	defer func() { finish(err) }()

	filter, err := o.inputs.WhereUnique.Validate(where)
	if err != nil {
		return model.Record{}, err
	}
	plan, err := o.resolver.Resolve(sel, o.entity, o.rules.RequiredFields(authz.Read))
	if err != nil {
		return model.Record{}, err
	}
	record, err = o.store.FindOne(ctx, o.entity, filter, plan)
	if errors.Is(err, store.ErrNotFound) {
		return model.Record{}, &NotFoundError{Entity: o.entity.Name}
	}
	if err != nil {
		return model.Record{}, err
	}
	if err = o.authorize(ctx, authz.Read, caller, record, model.Record{}); err != nil {
		return model.Record{}, err
	}
	return record, nil
}

// FindMany reads every record matching the filter. Authorization is
// all-or-nothing: one unreadable record denies the whole result.
func (o *Orchestrator) FindMany(ctx context.Context, caller identity.Caller, args FindArgs, sel *selection.Tree) (records []model.Record, err error) {
	ctx, finish := o.begin(ctx, "findMany")
	defer func() { finish(err) }()

	filter, err := o.inputs.Where.Validate(args.Where)
	if err != nil {
		return nil, err
	}
	order, err := o.inputs.OrderBy.Validate(args.OrderBy)
	if err != nil {
		return nil, err
	}
	plan, err := o.resolver.Resolve(sel, o.entity, o.rules.RequiredFields(authz.Read))
	if err != nil {
		return nil, err
	}
	records, err = o.store.FindAll(ctx, o.entity, filter, plan, order, args.Limit, args.Offset)
	if err != nil {
		return nil, err
	}
	if err = o.authorizeAll(ctx, authz.Read, caller, records, model.Record{}); err != nil {
		return nil, err
	}
	o.metrics.RecordResultsCount(ctx, int64(len(records)), o.entity.Name)
	return records, nil
}

// FindConnection counts the records matching the filter. Only the count is
// exposed, so the fetch plan and per-record authorization are bypassed.
func (o *Orchestrator) FindConnection(ctx context.Context, caller identity.Caller, where map[string]any) (conn Connection, err error) {
	ctx, finish := o.begin(ctx, "findConnection")
	defer func() { finish(err) }()

	filter, err := o.inputs.Where.Validate(where)
	if err != nil {
		return Connection{}, err
	}
	count, err := o.store.Count(ctx, o.entity, filter)
	if err != nil {
		return Connection{}, err
	}
	return Connection{Aggregate: Aggregate{Count: count}}, nil
}

// CreateOne creates one record. No record exists yet, so CREATE predicates
// evaluate against the proposed payload.
func (o *Orchestrator) CreateOne(ctx context.Context, caller identity.Caller, payload map[string]any, sel *selection.Tree) (record model.Record, err error) {
	ctx, finish := o.begin(ctx, "createOne")
	defer func() { finish(err) }()

	plan, err := o.resolver.Resolve(sel, o.entity, o.rules.RequiredFields(authz.Create))
	if err != nil {
		return model.Record{}, err
	}
	return o.createItem(ctx, caller, payload, plan)
}

// CreateMany creates every item of the payload, isolating failures per item.
// Items share no state, so they run concurrently; results keep input order.
func (o *Orchestrator) CreateMany(ctx context.Context, caller identity.Caller, items []map[string]any, sel *selection.Tree) (results []CreateResult, err error) {
	ctx, finish := o.begin(ctx, "createMany")
	defer func() { finish(err) }()

	plan, err := o.resolver.Resolve(sel, o.entity, o.rules.RequiredFields(authz.Create))
	if err != nil {
		return nil, err
	}

	results = make([]CreateResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, payload map[string]any) {
			defer wg.Done()
			record, itemErr := o.createItem(ctx, caller, payload, plan)
			results[i] = CreateResult{Record: record, Err: itemErr}
		}(i, item)
	}
	wg.Wait()
	return results, nil
}

func (o *Orchestrator) createItem(ctx context.Context, caller identity.Caller, payload map[string]any, plan *selection.FetchPlan) (model.Record, error) {
	proposed, err := o.proposed(payload)
	if err != nil {
		return model.Record{}, err
	}
	if err := o.authorize(ctx, authz.Create, caller, model.Record{}, proposed); err != nil {
		return model.Record{}, err
	}
	if err := o.inputs.Create.Validate(payload); err != nil {
		return model.Record{}, err
	}
	return o.store.CreateOne(ctx, o.entity, proposed, plan)
}

// UpdateOne updates one record by unique filter. The target is fetched first
// with the preflight attributes UPDATE predicates need, authorized, then the
// payload is validated against it.
func (o *Orchestrator) UpdateOne(ctx context.Context, caller identity.Caller, where, changes map[string]any, sel *selection.Tree) (record model.Record, err error) {
	ctx, finish := o.begin(ctx, "updateOne")
	defer func() { finish(err) }()

	filter, err := o.inputs.WhereUnique.Validate(where)
	if err != nil {
		return model.Record{}, err
	}
	current, err := o.fetchTargets(ctx, filter, authz.Update, true)
	if err != nil {
		return model.Record{}, err
	}
	proposed, err := o.proposed(changes)
	if err != nil {
		return model.Record{}, err
	}
	if err = o.authorize(ctx, authz.Update, caller, current[0], proposed); err != nil {
		return model.Record{}, err
	}
	if err = o.inputs.Update.Validate(changes, current[0]); err != nil {
		return model.Record{}, err
	}
	plan, err := o.resolver.Resolve(sel, o.entity, nil)
	if err != nil {
		return model.Record{}, err
	}
	return o.store.UpdateOne(ctx, o.entity, filter, proposed, plan, current[0])
}

// UpdateMany applies one change set to every record matching the filter.
// Authorization is all-or-nothing over the fetched targets; execution is
// item-by-item, so a storage failure on a later item does not roll back
// earlier ones. The returned count reflects the items actually persisted.
func (o *Orchestrator) UpdateMany(ctx context.Context, caller identity.Caller, where, changes map[string]any) (result BatchResult, err error) {
	ctx, finish := o.begin(ctx, "updateMany")
	defer func() { finish(err) }()

	filter, err := o.inputs.Where.Validate(where)
	if err != nil {
		return BatchResult{}, err
	}
	targets, err := o.fetchTargets(ctx, filter, authz.Update, false)
	if err != nil {
		return BatchResult{}, err
	}
	proposed, err := o.proposed(changes)
	if err != nil {
		return BatchResult{}, err
	}
	if err = o.authorizeAll(ctx, authz.Update, caller, targets, proposed); err != nil {
		return BatchResult{}, err
	}
	for _, target := range targets {
		if err = o.inputs.Update.Validate(changes, target); err != nil {
			return BatchResult{}, err
		}
	}

	idField := o.entity.IDField()
	idPlan := &selection.FetchPlan{Attributes: []string{idField}}
	for _, target := range targets {
		id, ok := target.ID()
		if !ok {
			err = &authz.ConfigError{Entity: o.entity.Name, Detail: "identifier missing from preflight fetch"}
			return result, err
		}
		if _, err = o.store.UpdateOne(ctx, o.entity, store.Eq(idField, id), proposed, idPlan, target); err != nil {
			return result, err
		}
		result.Count++
	}
	return result, nil
}

// DeleteOne deletes one record by unique filter and returns its pre-deletion
// snapshot. A missing target is NotFound; authorization is never consulted
// for records that do not exist.
func (o *Orchestrator) DeleteOne(ctx context.Context, caller identity.Caller, where map[string]any, sel *selection.Tree) (record model.Record, err error) {
	ctx, finish := o.begin(ctx, "deleteOne")
	defer func() { finish(err) }()

	filter, err := o.inputs.WhereUnique.Validate(where)
	if err != nil {
		return model.Record{}, err
	}
	plan, err := o.resolver.Resolve(sel, o.entity, o.rules.RequiredFields(authz.Delete))
	if err != nil {
		return model.Record{}, err
	}
	record, err = o.store.FindOne(ctx, o.entity, filter, plan)
	if errors.Is(err, store.ErrNotFound) {
		return model.Record{}, &NotFoundError{Entity: o.entity.Name}
	}
	if err != nil {
		return model.Record{}, err
	}
	if err = o.authorize(ctx, authz.Delete, caller, record, model.Record{}); err != nil {
		return model.Record{}, err
	}
	if err = o.store.DeleteOne(ctx, o.entity, filter); err != nil {
		return model.Record{}, err
	}
	return record, nil
}

// DeleteMany deletes every record matching the filter after authorizing the
// whole batch.
func (o *Orchestrator) DeleteMany(ctx context.Context, caller identity.Caller, where map[string]any) (result BatchResult, err error) {
	ctx, finish := o.begin(ctx, "deleteMany")
	defer func() { finish(err) }()

	filter, err := o.inputs.Where.Validate(where)
	if err != nil {
		return BatchResult{}, err
	}
	targets, err := o.fetchTargets(ctx, filter, authz.Delete, false)
	if err != nil {
		return BatchResult{}, err
	}
	if err = o.authorizeAll(ctx, authz.Delete, caller, targets, model.Record{}); err != nil {
		return BatchResult{}, err
	}
	count, err := o.store.DeleteMany(ctx, o.entity, filter)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Count: count}, nil
}

// fetchTargets loads the records a mutation will touch, projecting the
// preflight attributes: the fields the category's predicates need plus the
// identifier. For batch mutations UPDATE-required fields are fetched too, so
// mixed rule sets never evaluate against missing data.
func (o *Orchestrator) fetchTargets(ctx context.Context, filter store.Filter, category authz.Category, unique bool) ([]model.Record, error) {
	required := o.rules.RequiredFields(category)
	if category == authz.Delete {
		required = required.Merge(o.rules.RequiredFields(authz.Update))
	}
	plan, err := o.resolver.Resolve(required, o.entity, selection.FromNames(o.entity.IDField()))
	if err != nil {
		return nil, err
	}
	if unique {
		record, err := o.store.FindOne(ctx, o.entity, filter, plan)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Entity: o.entity.Name}
		}
		if err != nil {
			return nil, err
		}
		return []model.Record{record}, nil
	}
	return o.store.FindAll(ctx, o.entity, filter, plan, nil, 0, 0)
}

// proposed lifts a raw payload into a typed record. Association values
// arriving as plain objects become records of the target entity so rule
// predicates can traverse them.
func (o *Orchestrator) proposed(payload map[string]any) (model.Record, error) {
	values := make(map[string]any, len(payload))
	for name, value := range payload {
		assoc, ok := o.entity.Association(name)
		if !ok {
			values[name] = value
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			values[name] = value
			continue
		}
		target, found := o.registry.Entity(assoc.Target)
		if !found {
			return model.Record{}, &authz.ConfigError{Entity: o.entity.Name, Detail: "association " + name + " targets unknown entity " + assoc.Target}
		}
		record, err := model.NewRecord(target, nested)
		if err != nil {
			return model.Record{}, &validate.Error{Entity: o.entity.Name, Field: name, Constraint: err.Error()}
		}
		values[name] = record
	}
	record, err := model.NewRecord(o.entity, values)
	if err != nil {
		return model.Record{}, &validate.Error{Entity: o.entity.Name, Constraint: err.Error()}
	}
	return record, nil
}

func (o *Orchestrator) authorize(ctx context.Context, category authz.Category, caller identity.Caller, record, proposed model.Record) error {
	if err := o.rules.Authorize(category, caller, record, proposed); err != nil {
		o.denied(ctx, category, caller, err)
		return err
	}
	return nil
}

func (o *Orchestrator) authorizeAll(ctx context.Context, category authz.Category, caller identity.Caller, records []model.Record, proposed model.Record) error {
	if err := o.rules.AuthorizeAll(category, caller, records, proposed); err != nil {
		o.denied(ctx, category, caller, err)
		return err
	}
	return nil
}

func (o *Orchestrator) denied(ctx context.Context, category authz.Category, caller identity.Caller, err error) {
	if !IsDenied(err) {
		return
	}
	o.metrics.RecordDenial(ctx, o.entity.Name, string(category))
	o.logger.Warn("authorization denied",
		slog.String("entity", o.entity.Name),
		slog.String("category", string(category)),
		slog.String("caller_group", caller.Group),
	)
}

// begin opens the operation span and returns the finisher that records the
// span status and operation metrics.
func (o *Orchestrator) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := o.tracer.Start(ctx, "crud."+operation,
		trace.WithAttributes(
			attribute.String("entity", o.entity.Name),
			attribute.String("operation", operation),
		))
	began := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		o.metrics.RecordOperation(ctx, o.entity.Name, operation, time.Since(began), err != nil)
		span.End()
	}
}
