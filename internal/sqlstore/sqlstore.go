// Package sqlstore implements the relational store over MySQL-compatible
// databases. It projects exactly the attributes a fetch plan asks for, plus
// the key columns needed to stitch associations, and eager-loads associations
// through keyed follow-up queries rather than joins.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"modelql/internal/model"
	"modelql/internal/selection"
	"modelql/internal/store"
)

// Store executes fetch plans against a SQL database. One table per entity,
// one column per field, names taken verbatim from the schema model.
type Store struct {
	db       *sql.DB
	registry *model.Registry
	logger   *slog.Logger
}

// New builds a store over an open database handle.
func New(db *sql.DB, registry *model.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, registry: registry, logger: logger}
}

// FindOne fetches a single record. store.ErrNotFound when nothing matches.
func (s *Store) FindOne(ctx context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan) (model.Record, error) {
	records, err := s.fetch(ctx, entity, filter, plan, nil, 1, 0)
	if err != nil {
		return model.Record{}, err
	}
	if len(records) == 0 {
		return model.Record{}, store.ErrNotFound
	}
	return records[0], nil
}

// FindAll fetches every record matching the filter. A limit <= 0 means no
// limit.
func (s *Store) FindAll(ctx context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan, order []store.Order, limit, offset int) ([]model.Record, error) {
	return s.fetch(ctx, entity, filter, plan, order, limit, offset)
}

// Count returns the number of records matching the filter.
func (s *Store) Count(ctx context.Context, entity *model.Entity, filter store.Filter) (int64, error) {
	builder := sq.Select("COUNT(*)").From(tableName(entity))
	if cond, err := compileFilter(filter); err != nil {
		return 0, err
	} else if cond != nil {
		builder = builder.Where(cond)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, normalizeError(entity, err)
	}
	return count, nil
}

// CreateOne inserts a record and reads it back through the fetch plan. The
// identifier and auto-timestamp columns are filled in here.
func (s *Store) CreateOne(ctx context.Context, entity *model.Entity, payload model.Record, plan *selection.FetchPlan) (model.Record, error) {
	now := time.Now().UTC()
	values := make(map[string]interface{})
	var id any

	for _, field := range entity.Fields {
		switch {
		case field.Type == model.ID:
			id = uuid.NewString()
			values[column(field.Name)] = id
		case field.AutoCreatedAt || field.AutoUpdatedAt:
			values[column(field.Name)] = now
		default:
			if v, ok := payload.Get(field.Name); ok {
				values[column(field.Name)] = v
			}
		}
	}
	for _, assoc := range entity.Associations {
		if assoc.Many || assoc.LocalKey == "" {
			continue
		}
		if key, ok := associationKey(payload, assoc.Name); ok {
			values[column(assoc.LocalKey)] = key
		}
	}

	query, args, err := sq.Insert(tableName(entity)).SetMap(values).ToSql()
	if err != nil {
		return model.Record{}, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return model.Record{}, normalizeError(entity, err)
	}
	return s.FindOne(ctx, entity, store.Eq(entity.IDField(), id), plan)
}

// UpdateOne applies the changes to the record matching the filter and reads
// the updated row back. The known record, when supplied, pins the read-back
// to the identifier so updates to the filtered column itself still resolve.
func (s *Store) UpdateOne(ctx context.Context, entity *model.Entity, filter store.Filter, changes model.Record, plan *selection.FetchPlan, known model.Record) (model.Record, error) {
	now := time.Now().UTC()
	values := make(map[string]interface{})

	for _, field := range entity.Fields {
		if field.AutoUpdatedAt {
			values[column(field.Name)] = now
			continue
		}
		if field.AutoGenerated() {
			continue
		}
		if v, ok := changes.Get(field.Name); ok {
			values[column(field.Name)] = v
		}
	}
	for _, assoc := range entity.Associations {
		if assoc.Many || assoc.LocalKey == "" {
			continue
		}
		if key, ok := associationKey(changes, assoc.Name); ok {
			values[column(assoc.LocalKey)] = key
		}
	}

	cond, err := compileFilter(filter)
	if err != nil {
		return model.Record{}, err
	}
	builder := sq.Update(tableName(entity)).SetMap(values)
	if cond != nil {
		builder = builder.Where(cond)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return model.Record{}, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return model.Record{}, normalizeError(entity, err)
	}

	readback := filter
	if !known.Zero() {
		if id, ok := known.ID(); ok {
			readback = store.Eq(entity.IDField(), id)
		}
	}
	return s.FindOne(ctx, entity, readback, plan)
}

// DeleteOne deletes the record matching the filter. Deleting an already-gone
// record is a no-op.
func (s *Store) DeleteOne(ctx context.Context, entity *model.Entity, filter store.Filter) error {
	_, err := s.deleteWhere(ctx, entity, filter)
	return err
}

// DeleteMany deletes every record matching the filter and reports the count.
func (s *Store) DeleteMany(ctx context.Context, entity *model.Entity, filter store.Filter) (int64, error) {
	return s.deleteWhere(ctx, entity, filter)
}

func (s *Store) deleteWhere(ctx context.Context, entity *model.Entity, filter store.Filter) (int64, error) {
	cond, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	builder := sq.Delete(tableName(entity))
	if cond != nil {
		builder = builder.Where(cond)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, normalizeError(entity, err)
	}
	return result.RowsAffected()
}

// fetch runs the projected query and hydrates association includes.
func (s *Store) fetch(ctx context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan, order []store.Order, limit, offset int) ([]model.Record, error) {
	rows, err := s.queryMaps(ctx, entity, filter, plan, order, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, entity, rows, plan)
}

func (s *Store) queryMaps(ctx context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan, order []store.Order, limit, offset int) ([]map[string]any, error) {
	attrs := projectedAttributes(entity, plan)
	cols := make([]string, len(attrs))
	for i, attr := range attrs {
		cols[i] = column(attr)
	}

	builder := sq.Select(cols...).From(tableName(entity))
	if cond, err := compileFilter(filter); err != nil {
		return nil, err
	} else if cond != nil {
		builder = builder.Where(cond)
	}
	for _, o := range order {
		builder = builder.OrderBy(orderTerm(o))
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	result, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizeError(entity, err)
	}
	defer result.Close()

	return scanMaps(entity, attrs, result)
}

// hydrate attaches eager-loaded associations to the raw rows and lifts them
// into typed records.
func (s *Store) hydrate(ctx context.Context, entity *model.Entity, rows []map[string]any, plan *selection.FetchPlan) ([]model.Record, error) {
	for _, inc := range plan.Includes {
		if err := s.attach(ctx, entity, rows, inc); err != nil {
			return nil, err
		}
	}
	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		record, err := model.NewRecord(entity, row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// attach loads one association for a row batch with a single keyed query.
func (s *Store) attach(ctx context.Context, entity *model.Entity, rows []map[string]any, inc selection.Include) error {
	if len(rows) == 0 {
		return nil
	}
	assoc, ok := entity.Association(inc.Association)
	if !ok {
		return fmt.Errorf("entity %s has no association %s", entity.Name, inc.Association)
	}
	target, ok := s.registry.Entity(assoc.Target)
	if !ok {
		return fmt.Errorf("association %s.%s targets unknown entity %s", entity.Name, assoc.Name, assoc.Target)
	}
	if assoc.Many {
		return s.attachMany(ctx, entity, target, assoc, rows, inc.Plan)
	}
	return s.attachOne(ctx, target, assoc, rows, inc.Plan)
}

func (s *Store) attachOne(ctx context.Context, target *model.Entity, assoc model.Association, rows []map[string]any, plan *selection.FetchPlan) error {
	keys := make([]any, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := row[assoc.LocalKey]
		if key == nil {
			continue
		}
		if _, dup := seen[keyString(key)]; dup {
			continue
		}
		seen[keyString(key)] = struct{}{}
		keys = append(keys, key)
	}

	byID := make(map[string]model.Record, len(keys))
	if len(keys) > 0 {
		filter := store.Filter{Conds: []store.Cond{{Field: target.IDField(), Op: store.OpIn, Value: keys}}}
		nested, err := s.fetch(ctx, target, filter, plan, nil, 0, 0)
		if err != nil {
			return err
		}
		for _, record := range nested {
			if id, ok := record.ID(); ok {
				byID[keyString(id)] = record
			}
		}
	}

	for _, row := range rows {
		key := row[assoc.LocalKey]
		if key == nil {
			row[assoc.Name] = nil
			continue
		}
		if record, ok := byID[keyString(key)]; ok {
			row[assoc.Name] = record
		} else {
			row[assoc.Name] = nil
		}
	}
	return nil
}

func (s *Store) attachMany(ctx context.Context, entity, target *model.Entity, assoc model.Association, rows []map[string]any, plan *selection.FetchPlan) error {
	idField := entity.IDField()
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id := row[idField]; id != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	// The remote key rides along in the projection so children can be
	// grouped back onto their parents.
	nestedPlan := &selection.FetchPlan{
		Attributes: append(append([]string{}, plan.Attributes...), assoc.RemoteKey),
		Includes:   plan.Includes,
	}
	filter := store.Filter{Conds: []store.Cond{{Field: assoc.RemoteKey, Op: store.OpIn, Value: ids}}}
	nested, err := s.fetch(ctx, target, filter, nestedPlan, nil, 0, 0)
	if err != nil {
		return err
	}

	grouped := make(map[string][]model.Record, len(rows))
	for _, record := range nested {
		key, ok := record.Get(assoc.RemoteKey)
		if !ok || key == nil {
			continue
		}
		grouped[keyString(key)] = append(grouped[keyString(key)], record)
	}
	for _, row := range rows {
		id := row[idField]
		if id == nil {
			row[assoc.Name] = []model.Record{}
			continue
		}
		children := grouped[keyString(id)]
		if children == nil {
			children = []model.Record{}
		}
		row[assoc.Name] = children
	}
	return nil
}

// associationKey extracts the target identifier from a to-one association
// value in a mutation payload.
func associationKey(payload model.Record, name string) (any, bool) {
	value, ok := payload.Get(name)
	if !ok {
		return nil, false
	}
	record, ok := value.(model.Record)
	if !ok {
		return nil, false
	}
	return record.ID()
}

// keyString normalizes key values across driver types so int64 identifiers
// from the database match int identifiers from payloads.
func keyString(key any) string {
	if b, ok := key.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", key)
}
