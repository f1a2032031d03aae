package bastion

import (
	"errors"

	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

var (
	// ErrUnknownPrincipal is returned when a principal cannot be resolved.
	ErrUnknownPrincipal = errors.New("bastion: unknown principal")

	// ErrUnknownRole is returned when a role is not registered.
	ErrUnknownRole = role.ErrUnknownRole

	// ErrForbidden is returned when the actor lacks the permission a
	// mutating action requires.
	ErrForbidden = errors.New("bastion: forbidden")

	// ErrSuspended is returned when a suspended actor attempts a mutating
	// action.
	ErrSuspended = errors.New("bastion: principal suspended")

	// ErrAuditWriteFailed is returned when an audit entry could not be
	// made durable. The triggering mutation has not been applied.
	ErrAuditWriteFailed = errors.New("bastion: audit write failed")

	// ErrConfigurationInvalid is returned at startup when the catalog or
	// role matrix is inconsistent.
	ErrConfigurationInvalid = permission.ErrConfigurationInvalid

	// ErrVersionConflict is returned when a principal kept changing under
	// a mutation after every retry.
	ErrVersionConflict = principal.ErrVersionConflict
)
