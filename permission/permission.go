// Package permission defines the closed Permission catalog.
//
// A Permission is a namespaced capability identifier of the form
// "resource:action". The set of permissions Bastion understands is fixed at
// build time and declared below; a Catalog is the validated, immutable view
// of that set that the rest of the system consults.
package permission

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrConfigurationInvalid is returned when the catalog or the role matrix
// is inconsistent. It is fatal at startup.
var ErrConfigurationInvalid = errors.New("bastion: configuration invalid")

// Permission is a capability identifier such as "workflow:execute".
type Permission string

// Workflow permissions.
const (
	WorkflowRead    Permission = "workflow:read"
	WorkflowCreate  Permission = "workflow:create"
	WorkflowUpdate  Permission = "workflow:update"
	WorkflowDelete  Permission = "workflow:delete"
	WorkflowExecute Permission = "workflow:execute"
	WorkflowApprove Permission = "workflow:approve"
)

// Integration permissions.
const (
	IntegrationRead   Permission = "integration:read"
	IntegrationCreate Permission = "integration:create"
	IntegrationUpdate Permission = "integration:update"
	IntegrationDelete Permission = "integration:delete"
)

// Analytics and billing permissions.
const (
	AnalyticsRead   Permission = "analytics:read"
	AnalyticsExport Permission = "analytics:export"
	BillingRead     Permission = "billing:read"
	BillingManage   Permission = "billing:manage"
)

// User administration permissions.
const (
	UserRead       Permission = "user:read"
	UserCreate     Permission = "user:create"
	UserUpdate     Permission = "user:update"
	UserDelete     Permission = "user:delete"
	UserRoleAssign Permission = "user:role_assign"
)

// System permissions.
const (
	SystemConfig Permission = "system:config"
	SystemBackup Permission = "system:backup"
	SystemAudit  Permission = "system:audit"
)

var syntax = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

// Parse validates the syntax of s and returns it as a Permission.
// It does not check catalog membership; use Catalog.Exists for that.
func Parse(s string) (Permission, error) {
	if !syntax.MatchString(s) {
		return "", fmt.Errorf("permission: malformed identifier %q", s)
	}
	return Permission(s), nil
}

// String returns the permission identifier.
func (p Permission) String() string { return string(p) }

// Resource returns the part before the colon.
func (p Permission) Resource() string {
	r, _, _ := strings.Cut(string(p), ":")
	return r
}

// Action returns the part after the colon.
func (p Permission) Action() string {
	_, a, _ := strings.Cut(string(p), ":")
	return a
}

// Set is a permission set with O(1) membership.
type Set map[Permission]struct{}

// NewSet builds a Set from perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of permissions in the set.
func (s Set) Len() int { return len(s) }

// Slice returns the permissions in lexical order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// SubsetOf reports whether every permission in s is also in other.
func (s Set) SubsetOf(other Set) bool {
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}
