package api

// ──────────────────────────────────────────────────
// Authorization requests
// ──────────────────────────────────────────────────

// AuthorizeRequest is the body for an authorization check. PrincipalID
// defaults to the session principal.
type AuthorizeRequest struct {
	PrincipalID string `json:"principal_id,omitempty" description:"Principal to check (default: session principal)"`
	Permission  string `json:"permission" description:"Permission identifier (e.g. workflow:execute)"`
}

// BatchAuthorizeRequest checks several permissions for one principal.
type BatchAuthorizeRequest struct {
	PrincipalID string   `json:"principal_id,omitempty" description:"Principal to check (default: session principal)"`
	Permissions []string `json:"permissions" description:"Permission identifiers"`
}

// ──────────────────────────────────────────────────
// Principal requests
// ──────────────────────────────────────────────────

// GetPrincipalRequest is the path parameter for getting a principal.
type GetPrincipalRequest struct {
	PrincipalID string `path:"principalId" description:"Principal ID"`
}

// AssignRoleRequest is the body for replacing a principal's role.
type AssignRoleRequest struct {
	Role string `json:"role" description:"New role (super_admin, admin, manager, user, viewer)"`
}

// StatusRequest is the (empty) body for suspend and reactivate.
type StatusRequest struct {
	PrincipalID string `path:"principalId" description:"Principal ID"`
}

// ──────────────────────────────────────────────────
// Audit requests
// ──────────────────────────────────────────────────

// ListAuditRequest holds query parameters for querying the audit log.
type ListAuditRequest struct {
	ActorID    string `query:"actor_id" description:"Filter by actor"`
	TargetID   string `query:"target_id" description:"Filter by target"`
	Principal  string `query:"principal" description:"Filter by actor or target"`
	Action     string `query:"action" description:"Filter by action"`
	Permission string `query:"permission" description:"Filter by permission"`
	Outcome    string `query:"outcome" description:"Filter by outcome (allowed, denied)"`
	After      string `query:"after" description:"At or after timestamp (RFC3339)"`
	Before     string `query:"before" description:"Before timestamp (RFC3339)"`
	Limit      int    `query:"limit" description:"Maximum results (default: 50)"`
}

// PurgeAuditRequest is the body for purging old audit entries.
type PurgeAuditRequest struct {
	Before string `json:"before" description:"Remove entries older than this timestamp (RFC3339)"`
}
