package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
)

// Named entry types pair a hook with the plugin name for logging.

type afterAuthorizeEntry struct {
	name string
	hook AfterAuthorize
}
type accessDeniedEntry struct {
	name string
	hook AccessDenied
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type principalSuspendedEntry struct {
	name string
	hook PrincipalSuspended
}
type principalReactivatedEntry struct {
	name string
	hook PrincipalReactivated
}
type auditPurgedEntry struct {
	name string
	hook AuditPurged
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	afterAuthorize       []afterAuthorizeEntry
	accessDenied         []accessDeniedEntry
	roleAssigned         []roleAssignedEntry
	principalSuspended   []principalSuspendedEntry
	principalReactivated []principalReactivatedEntry
	auditPurged          []auditPurgedEntry
	shutdown             []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(AfterAuthorize); ok {
		r.afterAuthorize = append(r.afterAuthorize, afterAuthorizeEntry{name, h})
	}
	if h, ok := p.(AccessDenied); ok {
		r.accessDenied = append(r.accessDenied, accessDeniedEntry{name, h})
	}
	if h, ok := p.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, h})
	}
	if h, ok := p.(PrincipalSuspended); ok {
		r.principalSuspended = append(r.principalSuspended, principalSuspendedEntry{name, h})
	}
	if h, ok := p.(PrincipalReactivated); ok {
		r.principalReactivated = append(r.principalReactivated, principalReactivatedEntry{name, h})
	}
	if h, ok := p.(AuditPurged); ok {
		r.auditPurged = append(r.auditPurged, auditPurgedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Authorization event emitters
// ──────────────────────────────────────────────────

// EmitAfterAuthorize notifies all plugins that implement AfterAuthorize.
func (r *Registry) EmitAfterAuthorize(ctx context.Context, principalID string, perm permission.Permission, allowed bool, reason string) {
	for _, e := range r.afterAuthorize {
		if err := e.hook.OnAfterAuthorize(ctx, principalID, perm, allowed, reason); err != nil {
			r.logHookError("OnAfterAuthorize", e.name, err)
		}
	}
}

// EmitAccessDenied notifies all plugins that implement AccessDenied.
func (r *Registry) EmitAccessDenied(ctx context.Context, entry *audit.Entry) {
	for _, e := range r.accessDenied {
		if err := e.hook.OnAccessDenied(ctx, entry); err != nil {
			r.logHookError("OnAccessDenied", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Principal event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, entry *audit.Entry) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, entry); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitPrincipalSuspended notifies all plugins that implement PrincipalSuspended.
func (r *Registry) EmitPrincipalSuspended(ctx context.Context, entry *audit.Entry) {
	for _, e := range r.principalSuspended {
		if err := e.hook.OnPrincipalSuspended(ctx, entry); err != nil {
			r.logHookError("OnPrincipalSuspended", e.name, err)
		}
	}
}

// EmitPrincipalReactivated notifies all plugins that implement PrincipalReactivated.
func (r *Registry) EmitPrincipalReactivated(ctx context.Context, entry *audit.Entry) {
	for _, e := range r.principalReactivated {
		if err := e.hook.OnPrincipalReactivated(ctx, entry); err != nil {
			r.logHookError("OnPrincipalReactivated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Audit event emitters
// ──────────────────────────────────────────────────

// EmitAuditPurged notifies all plugins that implement AuditPurged.
func (r *Registry) EmitAuditPurged(ctx context.Context, removed int64, entry *audit.Entry) {
	for _, e := range r.auditPurged {
		if err := e.hook.OnAuditPurged(ctx, removed, entry); err != nil {
			r.logHookError("OnAuditPurged", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
