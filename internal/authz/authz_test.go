package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelql/internal/identity"
	"modelql/internal/model"
	"modelql/internal/selection"
)

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	r := model.NewRegistry()
	r.MustRegister(&model.Entity{
		Name: "Document",
		Fields: []model.Field{
			{Name: "id", Type: model.ID},
			{Name: "ownerId", Type: model.String},
			{Name: "published", Type: model.Boolean},
			{Name: "title", Type: model.String},
		},
		Associations: []model.Association{
			{Name: "owner", Target: "User", LocalKey: "ownerId"},
		},
		Rules: model.RuleSet{
			Create: []string{"Admin"},
			Read:   []string{"Admin", "$user.id == {{ownerId}}", "{{published}} == true"},
			Update: []string{"Admin", "$user.id == {{owner.id}}"},
		},
	})
	r.MustRegister(&model.Entity{
		Name: "User",
		Fields: []model.Field{
			{Name: "id", Type: model.ID},
			{Name: "ownerId", Type: model.String, Nullable: true},
			{Name: "group", Type: model.String},
		},
	})
	require.NoError(t, r.Freeze())
	return r
}

func compileFor(t *testing.T, r *model.Registry, name string) *Rules {
	t.Helper()
	entity, ok := r.Entity(name)
	require.True(t, ok)
	rules, err := Compile(r, entity)
	require.NoError(t, err)
	return rules
}

func record(t *testing.T, r *model.Registry, entity string, values map[string]any) model.Record {
	t.Helper()
	e, ok := r.Entity(entity)
	require.True(t, ok)
	rec, err := model.NewRecord(e, values)
	require.NoError(t, err)
	return rec
}

func TestCompileRejectsBadRules(t *testing.T) {
	r := testRegistry(t)
	doc, _ := r.Entity("Document")

	tests := []struct {
		name    string
		rule    string
		message string
	}{
		{"empty rule", "  ", "empty rule"},
		{"unknown record field", "$user.id == {{nope}}", "field nope does not exist"},
		{"unknown association", "$user.id == {{author.id}}", "association author does not exist"},
		{"unknown nested field", "$user.id == {{owner.email}}", "field email does not exist on User"},
		{"malformed placeholder", "$user.id == {{id", "malformed placeholder"},
		{"not a rule", "owner of record", "neither a group name nor a comparison"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := &model.Entity{
				Name:         doc.Name,
				Fields:       doc.Fields,
				Associations: doc.Associations,
				Rules:        model.RuleSet{Read: []string{tt.rule}},
			}
			reg := model.NewRegistry()
			reg.MustRegister(broken)
			reg.MustRegister(&model.Entity{
				Name: "User",
				Fields: []model.Field{
					{Name: "id", Type: model.ID},
					{Name: "group", Type: model.String},
				},
			})
			require.NoError(t, reg.Freeze())

			entity, _ := reg.Entity("Document")
			_, err := Compile(reg, entity)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Error(), tt.message)
		})
	}
}

func TestRequiredFields(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")

	read := rules.RequiredFields(Read)
	assert.Equal(t, []string{"ownerId", "published"}, read.Names())

	update := rules.RequiredFields(Update)
	assert.Equal(t, []string{"owner"}, update.Names())
	require.NotNil(t, update.Child("owner"))
	assert.Equal(t, []string{"id"}, update.Child("owner").Names())

	// Pure-role categories need nothing fetched.
	assert.True(t, rules.RequiredFields(Create).Empty())

	merged := selection.FromNames("title").Merge(read)
	assert.Equal(t, []string{"title", "ownerId", "published"}, merged.Names())
}

func TestAuthorizeRolePredicate(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")
	rec := record(t, r, "Document", map[string]any{"ownerId": "u1", "published": false})

	err := rules.Authorize(Read, identity.Caller{Group: "Admin"}, rec, model.Record{})
	assert.NoError(t, err)

	err = rules.Authorize(Read, identity.Caller{Group: "Guest"}, rec, model.Record{})
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "Document", denied.Entity)
	assert.Equal(t, Read, denied.Category)
}

func TestAuthorizeOwnershipPredicate(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")
	rec := record(t, r, "Document", map[string]any{"ownerId": "u1", "published": false})

	assert.NoError(t, rules.Authorize(Read, identity.Caller{ID: "u1"}, rec, model.Record{}))

	var denied *DeniedError
	assert.ErrorAs(t, rules.Authorize(Read, identity.Caller{ID: "u2"}, rec, model.Record{}), &denied)
}

func TestAuthorizeLiteralPredicate(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")

	public := record(t, r, "Document", map[string]any{"ownerId": "u1", "published": true})
	assert.NoError(t, rules.Authorize(Read, identity.Caller{}, public, model.Record{}))

	private := record(t, r, "Document", map[string]any{"ownerId": "u1", "published": false})
	var denied *DeniedError
	assert.ErrorAs(t, rules.Authorize(Read, identity.Caller{}, private, model.Record{}), &denied)
}

func TestAuthorizeNestedPath(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")

	owner := record(t, r, "User", map[string]any{"id": "u1"})
	rec := record(t, r, "Document", map[string]any{"owner": owner})

	assert.NoError(t, rules.Authorize(Update, identity.Caller{ID: "u1"}, rec, model.Record{}))

	var denied *DeniedError
	assert.ErrorAs(t, rules.Authorize(Update, identity.Caller{ID: "u2"}, rec, model.Record{}), &denied)
}

func TestAuthorizeEmptyCategoryDenies(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")
	rec := record(t, r, "Document", map[string]any{"ownerId": "u1"})

	// Delete has no rules configured; even Admin is denied.
	var denied *DeniedError
	assert.ErrorAs(t, rules.Authorize(Delete, identity.Caller{Group: "Admin"}, rec, model.Record{}), &denied)
}

func TestAuthorizeMissingFetchedFieldIsConfigError(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")

	// Record exists but ownerId was not fetched; published absent too.
	rec := record(t, r, "Document", map[string]any{"title": "x"})

	var cfgErr *ConfigError
	err := rules.Authorize(Read, identity.Caller{ID: "u1"}, rec, model.Record{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "was not fetched")
}

func TestAuthorizeMissingProposedFieldIsFalse(t *testing.T) {
	r := model.NewRegistry()
	r.MustRegister(&model.Entity{
		Name: "Note",
		Fields: []model.Field{
			{Name: "id", Type: model.ID},
			{Name: "ownerId", Type: model.String, Nullable: true},
		},
		Rules: model.RuleSet{Create: []string{"$user.id == {{ownerId}}"}},
	})
	require.NoError(t, r.Freeze())
	rules := compileFor(t, r, "Note")

	withOwner := record(t, r, "Note", map[string]any{"ownerId": "u1"})
	assert.NoError(t, rules.Authorize(Create, identity.Caller{ID: "u1"}, model.Record{}, withOwner))

	// Absent optional field in the payload is a denial, not a config error.
	withoutOwner := record(t, r, "Note", map[string]any{})
	var denied *DeniedError
	err := rules.Authorize(Create, identity.Caller{ID: "u1"}, model.Record{}, withoutOwner)
	assert.ErrorAs(t, err, &denied)
}

func TestAuthorizeAllIsAllOrNothing(t *testing.T) {
	r := testRegistry(t)
	rules := compileFor(t, r, "Document")

	mine := record(t, r, "Document", map[string]any{"ownerId": "u1", "published": false})
	theirs := record(t, r, "Document", map[string]any{"ownerId": "u2", "published": false})

	caller := identity.Caller{ID: "u1"}
	assert.NoError(t, rules.AuthorizeAll(Read, caller, []model.Record{mine}, model.Record{}))

	var denied *DeniedError
	err := rules.AuthorizeAll(Read, caller, []model.Record{mine, theirs}, model.Record{})
	assert.ErrorAs(t, err, &denied)
}

func TestCompareCoercion(t *testing.T) {
	tests := []struct {
		name  string
		left  any
		op    Operator
		right any
		want  bool
	}{
		{"int64 vs string id", int64(7), OpEq, "7", true},
		{"float vs int", 7.0, OpEq, 7, true},
		{"string inequality", "abc", OpNe, "abd", true},
		{"string ordering", "a", OpLt, "b", true},
		{"numeric ordering", int64(3), OpGe, 2.5, true},
		{"mixed incomparable", true, OpLt, "x", false},
		{"bool equality", true, OpEq, true, true},
		{"nil equality", nil, OpEq, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compare(tt.left, tt.op, tt.right))
		})
	}
}

func TestOperatorString(t *testing.T) {
	assert.Equal(t, "==", OpEq.String())
	assert.Equal(t, "!=", OpNe.String())
	assert.Equal(t, "<=", OpLe.String())
}
