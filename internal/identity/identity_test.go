package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	assert.True(t, Caller{}.Anonymous())
	assert.False(t, Caller{ID: "u1"}.Anonymous())
	assert.False(t, Caller{Group: "Admin"}.Anonymous())
	assert.False(t, Caller{Claims: map[string]any{"dept": "eng"}}.Anonymous())
}

func TestAttr(t *testing.T) {
	caller := Caller{
		ID:    "u1",
		Group: "Admin",
		Claims: map[string]any{
			"dept": "eng",
		},
	}

	id, ok := caller.Attr("id")
	require.True(t, ok)
	assert.Equal(t, "u1", id)

	group, ok := caller.Attr("group")
	require.True(t, ok)
	assert.Equal(t, "Admin", group)

	dept, ok := caller.Attr("dept")
	require.True(t, ok)
	assert.Equal(t, "eng", dept)

	_, ok = caller.Attr("missing")
	assert.False(t, ok)

	_, ok = Caller{}.Attr("id")
	assert.False(t, ok)
	_, ok = Caller{}.Attr("group")
	assert.False(t, ok)
}

func TestFromClaims(t *testing.T) {
	caller := FromClaims(jwt.MapClaims{
		"sub":   "u1",
		"group": "User",
		"dept":  "eng",
	})
	assert.Equal(t, "u1", caller.ID)
	assert.Equal(t, "User", caller.Group)

	dept, ok := caller.Attr("dept")
	require.True(t, ok)
	assert.Equal(t, "eng", dept)
}

func TestFromClaimsPrefersExplicitID(t *testing.T) {
	caller := FromClaims(jwt.MapClaims{
		"sub": "subject-1",
		"id":  "u42",
	})
	assert.Equal(t, "u42", caller.ID)

	caller = FromClaims(jwt.MapClaims{})
	assert.Nil(t, caller.ID)
	assert.True(t, caller.Anonymous())
}
