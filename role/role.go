// Package role defines the closed set of roles and the immutable Role
// Registry that maps each role to its explicit permission set.
//
// The registry never infers permissions between roles. Rank orders roles for
// display and hierarchy reports only; each role's permission set is
// authoritative on its own.
package role

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role is not part of the closed set or
// is not registered.
var ErrUnknownRole = errors.New("bastion: unknown role")

// Role names a fixed set of permissions assignable to a principal.
type Role string

// Known roles.
const (
	SuperAdmin Role = "super_admin"
	Admin      Role = "admin"
	Manager    Role = "manager"
	User       Role = "user"
	Viewer     Role = "viewer"
)

var known = map[Role]struct{}{
	SuperAdmin: {},
	Admin:      {},
	Manager:    {},
	User:       {},
	Viewer:     {},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := known[r]
	return ok
}

// String returns the role name.
func (r Role) String() string { return string(r) }

// Parse converts s to a Role, rejecting names outside the closed set.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
