// Package identity models the caller principal used in authorization rule
// evaluation. Authentication happens upstream; this package only shapes
// already-verified claims into a Caller.
package identity

import (
	"github.com/golang-jwt/jwt/v5"
)

// Caller is the authenticated principal, or its absence. ID and Group feed
// the `$user.id` and group-membership rule forms; any other `$user.<name>`
// reference resolves through Claims.
type Caller struct {
	ID     any
	Group  string
	Claims map[string]any
}

// Anonymous reports whether no principal is attached.
func (c Caller) Anonymous() bool {
	return c.ID == nil && c.Group == "" && len(c.Claims) == 0
}

// Attr resolves a `$user.<name>` reference. The id and group attributes are
// first-class; everything else falls through to the claim set.
func (c Caller) Attr(name string) (any, bool) {
	switch name {
	case "id":
		if c.ID == nil {
			return nil, false
		}
		return c.ID, true
	case "group":
		if c.Group == "" {
			return nil, false
		}
		return c.Group, true
	}
	value, ok := c.Claims[name]
	return value, ok
}

// FromClaims builds a Caller from verified JWT claims. The subject claim
// becomes the identifier unless an explicit id claim is present; the group
// claim carries the caller's role group.
func FromClaims(claims jwt.MapClaims) Caller {
	caller := Caller{Claims: map[string]any{}}
	for name, value := range claims {
		caller.Claims[name] = value
	}
	if id, ok := claims["id"]; ok {
		caller.ID = id
	} else if sub, ok := claims["sub"]; ok {
		caller.ID = sub
	}
	if group, ok := claims["group"].(string); ok {
		caller.Group = group
	}
	return caller
}
