// Package bastion provides role-based authorization with a tamper-evident
// audit trail.
//
// A fixed Permission Catalog and an immutable Role Registry are loaded once
// at startup and injected into the Engine. Every principal holds exactly one
// role; role and status change only through the Engine's administrative
// operations, each of which commits together with its audit entry.
//
//	eng, err := bastion.NewEngine(
//	    bastion.WithStore(memory.New()),
//	)
//	d, err := eng.Authorize(ctx, "user_123", permission.WorkflowExecute)
//	res, err := eng.AssignRole(ctx, "admin_1", "user_123", role.Manager)
package bastion

import (
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

// Reason explains an authorization decision.
type Reason string

const (
	// ReasonGranted means the principal's role includes the permission.
	ReasonGranted Reason = "granted"

	// ReasonNotGranted means the principal's role lacks the permission.
	ReasonNotGranted Reason = "not_granted"

	// ReasonSuspended means the principal is suspended.
	ReasonSuspended Reason = "suspended"

	// ReasonUnknownPermission means the permission is not in the catalog.
	ReasonUnknownPermission Reason = "unknown_permission"

	// ReasonUnknownRole means the principal holds a role the registry
	// does not define.
	ReasonUnknownRole Reason = "unknown_role"

	// ReasonUnknownPrincipal is recorded when an unresolvable actor attempts
	// a mutating action.
	ReasonUnknownPrincipal Reason = "unknown_principal"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	PrincipalID string                `json:"principal_id"`
	Permission  permission.Permission `json:"permission"`
	Role        role.Role             `json:"role,omitempty"`
	Allowed     bool                  `json:"allowed"`
	Reason      Reason                `json:"reason"`
}

// Request describes a mutating action for Enforce.
type Request struct {
	ActorID    string                `json:"actor_id"`
	TargetID   string                `json:"target_id,omitempty"`
	Action     string                `json:"action"`
	Permission permission.Permission `json:"permission"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// Result is returned by a committed administrative operation.
type Result struct {
	// Principal is the target's state after the commit.
	Principal *principal.Principal `json:"principal"`

	// Changed is false when the call left the target's state as it was.
	Changed bool `json:"changed"`

	// Entry is the audit entry recorded for the operation.
	Entry *audit.Entry `json:"entry"`
}
