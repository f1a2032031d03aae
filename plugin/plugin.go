// Package plugin defines the plugin system for Bastion.
// Plugins are notified of lifecycle events (authorization decided, access
// denied, role assigned, principal suspended, etc.) and can react with
// logging, metrics, alerting and so on.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Authorization hooks
// ──────────────────────────────────────────────────

// AfterAuthorize is called after every authorization decision, including
// cached ones. The reason is the decision's reason code.
type AfterAuthorize interface {
	OnAfterAuthorize(ctx context.Context, principalID string, perm permission.Permission, allowed bool, reason string) error
}

// AccessDenied is called after a denied mutating action has been recorded.
type AccessDenied interface {
	OnAccessDenied(ctx context.Context, entry *audit.Entry) error
}

// ──────────────────────────────────────────────────
// Principal lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role assignment commits. The entry carries
// the actor, target and old and new role.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, entry *audit.Entry) error
}

// PrincipalSuspended is called after a suspension commits.
type PrincipalSuspended interface {
	OnPrincipalSuspended(ctx context.Context, entry *audit.Entry) error
}

// PrincipalReactivated is called after a reactivation commits.
type PrincipalReactivated interface {
	OnPrincipalReactivated(ctx context.Context, entry *audit.Entry) error
}

// ──────────────────────────────────────────────────
// Audit hooks
// ──────────────────────────────────────────────────

// AuditPurged is called after a purge has been performed and recorded.
type AuditPurged interface {
	OnAuditPurged(ctx context.Context, removed int64, entry *audit.Entry) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
