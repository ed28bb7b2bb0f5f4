package crud

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelql/internal/identity"
	"modelql/internal/model"
	"modelql/internal/selection"
	"modelql/internal/store"
)

// stubStore satisfies store.Store through settable call hooks so tests can
// assert on the plans and filters the orchestrator builds.
type stubStore struct {
	mu          sync.Mutex
	findOne     func(entity *model.Entity, filter store.Filter, plan *selection.FetchPlan) (model.Record, error)
	findAll     func(entity *model.Entity, filter store.Filter, plan *selection.FetchPlan) ([]model.Record, error)
	count       func(entity *model.Entity, filter store.Filter) (int64, error)
	createOne   func(entity *model.Entity, payload model.Record, plan *selection.FetchPlan) (model.Record, error)
	updateOne   func(entity *model.Entity, filter store.Filter, changes model.Record, known model.Record) (model.Record, error)
	deleteOne   func(entity *model.Entity, filter store.Filter) error
	deleteMany  func(entity *model.Entity, filter store.Filter) (int64, error)
	creates     int
	updates     int
	deletes     int
	deleteManys int
}

func (s *stubStore) FindOne(_ context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan) (model.Record, error) {
	return s.findOne(entity, filter, plan)
}

func (s *stubStore) FindAll(_ context.Context, entity *model.Entity, filter store.Filter, plan *selection.FetchPlan, _ []store.Order, _, _ int) ([]model.Record, error) {
	return s.findAll(entity, filter, plan)
}

func (s *stubStore) Count(_ context.Context, entity *model.Entity, filter store.Filter) (int64, error) {
	return s.count(entity, filter)
}

func (s *stubStore) CreateOne(_ context.Context, entity *model.Entity, payload model.Record, plan *selection.FetchPlan) (model.Record, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.createOne(entity, payload, plan)
}

func (s *stubStore) UpdateOne(_ context.Context, entity *model.Entity, filter store.Filter, changes model.Record, _ *selection.FetchPlan, known model.Record) (model.Record, error) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	return s.updateOne(entity, filter, changes, known)
}

func (s *stubStore) DeleteOne(_ context.Context, entity *model.Entity, filter store.Filter) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.deleteOne(entity, filter)
}

func (s *stubStore) DeleteMany(_ context.Context, entity *model.Entity, filter store.Filter) (int64, error) {
	s.mu.Lock()
	s.deleteManys++
	s.mu.Unlock()
	return s.deleteMany(entity, filter)
}

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	r := model.NewRegistry()
	r.MustRegister(&model.Entity{
		Name: "User",
		Fields: []model.Field{
			{Name: "id", Type: model.ID},
			{Name: "email", Type: model.Email, Unique: true},
			{Name: "group", Type: model.String},
			{Name: "name", Type: model.String},
		},
		Rules: model.RuleSet{
			Create: []string{"Admin"},
			Read:   []string{"Admin", "$user.id == {{id}}"},
			Update: []string{"Admin", "$user.id == {{id}}"},
			Delete: []string{"Admin"},
		},
	})
	r.MustRegister(&model.Entity{
		Name: "Secret",
		Fields: []model.Field{
			{Name: "id", Type: model.ID},
			{Name: "value", Type: model.String},
		},
	})
	require.NoError(t, r.Freeze())
	return r
}

func testEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := New(testRegistry(t), st, WithLogger(logger))
	require.NoError(t, err)
	return engine
}

func userOrchestrator(t *testing.T, st store.Store) *Orchestrator {
	t.Helper()
	o, ok := testEngine(t, st).Entity("User")
	require.True(t, ok)
	return o
}

func record(t *testing.T, e *model.Entity, values map[string]any) model.Record {
	t.Helper()
	rec, err := model.NewRecord(e, values)
	require.NoError(t, err)
	return rec
}

func TestFindOneOwnerGranted(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, filter store.Filter, plan *selection.FetchPlan) (model.Record, error) {
		// The plan carries the client's selection plus the field the
		// expression predicate needs.
		assert.True(t, plan.HasAttribute("name"))
		assert.True(t, plan.HasAttribute("id"))
		require.Len(t, filter.Conds, 1)
		assert.Equal(t, "id", filter.Conds[0].Field)
		return record(t, e, map[string]any{"id": 7, "name": "Ann"}), nil
	}
	o := userOrchestrator(t, st)

	caller := identity.Caller{ID: 7, Group: "User"}
	got, err := o.FindOne(context.Background(), caller, map[string]any{"id": 7}, selection.FromNames("name"))
	require.NoError(t, err)

	name, ok := got.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Ann", name)
}

func TestFindOneStrangerDenied(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) (model.Record, error) {
		return record(t, e, map[string]any{"id": 7, "name": "Ann"}), nil
	}
	o := userOrchestrator(t, st)

	caller := identity.Caller{ID: 9, Group: "User"}
	_, err := o.FindOne(context.Background(), caller, map[string]any{"id": 7}, selection.FromNames("name"))
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	// Denial must not leak record contents.
	assert.NotContains(t, err.Error(), "Ann")
}

func TestFindOneAdminGranted(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) (model.Record, error) {
		return record(t, e, map[string]any{"id": 7, "name": "Ann"}), nil
	}
	o := userOrchestrator(t, st)

	caller := identity.Caller{ID: 1, Group: "Admin"}
	_, err := o.FindOne(context.Background(), caller, map[string]any{"id": 7}, selection.FromNames("name"))
	require.NoError(t, err)
}

func TestFindOneEmptyRulesFailClosed(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) (model.Record, error) {
		return record(t, e, map[string]any{"id": 1, "value": "classified"}), nil
	}
	o, ok := testEngine(t, st).Entity("Secret")
	require.True(t, ok)

	// No rules means no grants, even for privileged groups.
	_, err := o.FindOne(context.Background(), identity.Caller{ID: 1, Group: "Admin"}, map[string]any{"id": 1}, selection.FromNames("value"))
	require.Error(t, err)
	assert.True(t, IsDenied(err))
}

func TestFindManyAllOrNothing(t *testing.T) {
	st := &stubStore{}
	st.findAll = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) ([]model.Record, error) {
		return []model.Record{
			record(t, e, map[string]any{"id": 7, "name": "Ann"}),
			record(t, e, map[string]any{"id": 8, "name": "Bob"}),
		}, nil
	}
	o := userOrchestrator(t, st)

	// Caller 7 owns only the first record; the whole read is denied.
	_, err := o.FindMany(context.Background(), identity.Caller{ID: 7, Group: "User"}, FindArgs{}, selection.FromNames("name"))
	require.Error(t, err)
	assert.True(t, IsDenied(err))

	records, err := o.FindMany(context.Background(), identity.Caller{ID: 1, Group: "Admin"}, FindArgs{}, selection.FromNames("name"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFindConnectionCountOnly(t *testing.T) {
	st := &stubStore{}
	st.count = func(_ *model.Entity, filter store.Filter) (int64, error) {
		require.Len(t, filter.Conds, 1)
		return 5, nil
	}
	o := userOrchestrator(t, st)

	conn, err := o.FindConnection(context.Background(), identity.Caller{Group: "User"}, map[string]any{"group": "staff"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), conn.Aggregate.Count)
}

func TestCreateOneValidatesAfterAuthorization(t *testing.T) {
	st := &stubStore{}
	st.createOne = func(e *model.Entity, payload model.Record, _ *selection.FetchPlan) (model.Record, error) {
		values := payload.Values()
		values["id"] = 1
		return record(t, e, values), nil
	}
	o := userOrchestrator(t, st)

	payload := map[string]any{"email": "ann@example.com", "group": "User", "name": "Ann"}

	// A non-admin caller is denied before validation ever runs.
	_, err := o.CreateOne(context.Background(), identity.Caller{ID: 7, Group: "User"}, payload, selection.FromNames("id"))
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Equal(t, 0, st.creates)

	created, err := o.CreateOne(context.Background(), identity.Caller{ID: 1, Group: "Admin"}, payload, selection.FromNames("id"))
	require.NoError(t, err)
	id, ok := created.ID()
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestCreateOneRejectsAutoGeneratedField(t *testing.T) {
	st := &stubStore{}
	o := userOrchestrator(t, st)

	_, err := o.CreateOne(context.Background(), identity.Caller{Group: "Admin"},
		map[string]any{"id": 99, "email": "x@example.com", "group": "User", "name": "X"},
		selection.FromNames("id"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, st.creates)
}

func TestCreateManyIsolatesItemFailures(t *testing.T) {
	st := &stubStore{}
	st.createOne = func(e *model.Entity, payload model.Record, _ *selection.FetchPlan) (model.Record, error) {
		return payload, nil
	}
	o := userOrchestrator(t, st)

	items := []map[string]any{
		{"email": "a@example.com", "group": "User", "name": "A"},
		{"group": "User", "name": "missing email"},
		{"email": "c@example.com", "group": "User", "name": "C"},
	}
	results, err := o.CreateMany(context.Background(), identity.Caller{Group: "Admin"}, items, selection.FromNames("email"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[2].Err)
	require.Error(t, results[1].Err)
	assert.True(t, IsValidation(results[1].Err))
	assert.Equal(t, 2, st.creates)
}

func TestUpdateOneOwnerGranted(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, _ store.Filter, plan *selection.FetchPlan) (model.Record, error) {
		// Preflight fetch projects the predicate field and the identifier.
		assert.True(t, plan.HasAttribute("id"))
		return record(t, e, map[string]any{"id": 7}), nil
	}
	st.updateOne = func(e *model.Entity, _ store.Filter, changes model.Record, known model.Record) (model.Record, error) {
		name, ok := changes.Get("name")
		require.True(t, ok)
		id, _ := known.ID()
		return record(t, e, map[string]any{"id": id, "name": name}), nil
	}
	o := userOrchestrator(t, st)

	updated, err := o.UpdateOne(context.Background(), identity.Caller{ID: 7, Group: "User"},
		map[string]any{"id": 7}, map[string]any{"name": "Anne"}, selection.FromNames("name"))
	require.NoError(t, err)
	name, _ := updated.Get("name")
	assert.Equal(t, "Anne", name)
}

func TestUpdateOneMissingTargetIsNotFound(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(*model.Entity, store.Filter, *selection.FetchPlan) (model.Record, error) {
		return model.Record{}, store.ErrNotFound
	}
	o := userOrchestrator(t, st)

	// Existence check precedes the authorization check.
	_, err := o.UpdateOne(context.Background(), identity.Caller{ID: 9, Group: "User"},
		map[string]any{"id": 42}, map[string]any{"name": "X"}, selection.FromNames("name"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsDenied(err))
	assert.Equal(t, 0, st.updates)
}

func TestUpdateManyDeniedBatchPersistsNothing(t *testing.T) {
	st := &stubStore{}
	st.findAll = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) ([]model.Record, error) {
		return []model.Record{
			record(t, e, map[string]any{"id": 7}),
			record(t, e, map[string]any{"id": 8}),
		}, nil
	}
	o := userOrchestrator(t, st)

	_, err := o.UpdateMany(context.Background(), identity.Caller{ID: 7, Group: "User"},
		map[string]any{"group": "User"}, map[string]any{"name": "renamed"})
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Equal(t, 0, st.updates)
}

func TestUpdateManyPersistsEachTarget(t *testing.T) {
	st := &stubStore{}
	st.findAll = func(e *model.Entity, _ store.Filter, _ *selection.FetchPlan) ([]model.Record, error) {
		return []model.Record{
			record(t, e, map[string]any{"id": 7}),
			record(t, e, map[string]any{"id": 8}),
		}, nil
	}
	st.updateOne = func(e *model.Entity, filter store.Filter, _ model.Record, known model.Record) (model.Record, error) {
		require.Len(t, filter.Conds, 1)
		assert.Equal(t, "id", filter.Conds[0].Field)
		return known, nil
	}
	o := userOrchestrator(t, st)

	result, err := o.UpdateMany(context.Background(), identity.Caller{ID: 1, Group: "Admin"},
		map[string]any{"group": "User"}, map[string]any{"name": "renamed"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Count)
	assert.Equal(t, 2, st.updates)
}

func TestDeleteOneReturnsSnapshot(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(e *model.Entity, _ store.Filter, plan *selection.FetchPlan) (model.Record, error) {
		assert.True(t, plan.HasAttribute("name"))
		return record(t, e, map[string]any{"id": 7, "name": "Ann"}), nil
	}
	st.deleteOne = func(*model.Entity, store.Filter) error { return nil }
	o := userOrchestrator(t, st)

	snapshot, err := o.DeleteOne(context.Background(), identity.Caller{Group: "Admin"},
		map[string]any{"id": 7}, selection.FromNames("name"))
	require.NoError(t, err)
	name, _ := snapshot.Get("name")
	assert.Equal(t, "Ann", name)
	assert.Equal(t, 1, st.deletes)
}

func TestDeleteOneMissingIsNotFound(t *testing.T) {
	st := &stubStore{}
	st.findOne = func(*model.Entity, store.Filter, *selection.FetchPlan) (model.Record, error) {
		return model.Record{}, store.ErrNotFound
	}
	o := userOrchestrator(t, st)

	_, err := o.DeleteOne(context.Background(), identity.Caller{ID: 9, Group: "User"},
		map[string]any{"id": 42}, selection.FromNames("name"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsDenied(err))
	assert.Equal(t, 0, st.deletes)
}

func TestDeleteManyAuthorizesBatchThenDeletes(t *testing.T) {
	st := &stubStore{}
	st.findAll = func(e *model.Entity, _ store.Filter, plan *selection.FetchPlan) ([]model.Record, error) {
		assert.True(t, plan.HasAttribute("id"))
		return []model.Record{
			record(t, e, map[string]any{"id": 7}),
			record(t, e, map[string]any{"id": 8}),
		}, nil
	}
	st.deleteMany = func(*model.Entity, store.Filter) (int64, error) { return 2, nil }
	o := userOrchestrator(t, st)

	_, err := o.DeleteMany(context.Background(), identity.Caller{ID: 7, Group: "User"}, map[string]any{"group": "User"})
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Equal(t, 0, st.deleteManys)

	result, err := o.DeleteMany(context.Background(), identity.Caller{Group: "Admin"}, map[string]any{"group": "User"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Count)
}

func TestFindManyRejectsMalformedFilter(t *testing.T) {
	st := &stubStore{}
	o := userOrchestrator(t, st)

	_, err := o.FindMany(context.Background(), identity.Caller{Group: "Admin"},
		FindArgs{Where: map[string]any{"nickname": "x"}}, selection.FromNames("name"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestSurfaces(t *testing.T) {
	st := &stubStore{}
	engine := testEngine(t, st)

	surfaces := engine.Surfaces()
	require.Len(t, surfaces, 2)
	assert.Equal(t, "user", surfaces[0].FindOne)
	assert.Equal(t, "usersConnection", surfaces[0].Connection)
	assert.Equal(t, "deleteManyUsers", surfaces[0].DeleteMany)
	assert.Equal(t, "Secret", surfaces[1].Entity)
}
