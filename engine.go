package bastion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Engine is the central authorization engine. It owns the role registry,
// decides allow/deny for (principal, permission) pairs, performs the
// audited administrative operations and fires plugin hooks.
type Engine struct {
	store    store.Store
	registry *role.Registry
	cache    Cache
	plugins  *plugin.Registry
	pending  []plugin.Plugin
	logger   *slog.Logger
	config   Config
	now      func() time.Time
	locks    *keyedMutex
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("bastion: store is required")
	}
	if e.registry == nil {
		e.registry = role.DefaultRegistry()
	}
	e.config = e.config.withDefaults()
	if len(e.pending) > 0 {
		e.plugins = plugin.NewRegistry(e.logger)
		for _, p := range e.pending {
			e.plugins.Register(p)
		}
		e.pending = nil
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Registry returns the role registry.
func (e *Engine) Registry() *role.Registry { return e.registry }

// Catalog returns the permission catalog the registry was validated against.
func (e *Engine) Catalog() *permission.Catalog { return e.registry.Catalog() }

// Roles returns the role definitions, highest rank first.
func (e *Engine) Roles() []role.Definition { return e.registry.Roles() }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Authorization
// ──────────────────────────────────────────────────

// Authorize decides whether principalID holds perm. It is the hot path and
// has no side effects unless Config.AuditVisibilityChecks is set. Only an
// unresolvable principal is an error; every other outcome is a Decision.
func (e *Engine) Authorize(ctx context.Context, principalID string, perm permission.Permission) (*Decision, error) {
	d, err := e.decide(ctx, principalID, perm, true)
	if err != nil {
		return nil, err
	}
	if e.config.AuditVisibilityChecks && (!d.Allowed || e.config.AuditVisibilityAllowed) {
		entry := &audit.Entry{
			ActorID:    principalID,
			Action:     audit.ActionAuthorize,
			Permission: perm,
			Outcome:    outcomeOf(d.Allowed),
			Reason:     string(d.Reason),
			Source:     SourceFromContext(ctx),
		}
		if err := e.appendAudit(ctx, entry); err != nil {
			// Visibility checks stay available when the log is not.
			e.logger.Error("bastion: visibility audit failed",
				slog.String("principal", principalID),
				slog.String("permission", string(perm)),
				slog.String("error", err.Error()),
			)
		}
	}
	return d, nil
}

// Can is a shorthand returning only whether the principal is allowed.
func (e *Engine) Can(ctx context.Context, principalID string, perm permission.Permission) (bool, error) {
	d, err := e.Authorize(ctx, principalID, perm)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// decide evaluates perm for principalID. With cached set, a decision held
// by the cache is served as is and fresh active decisions are stored.
func (e *Engine) decide(ctx context.Context, principalID string, perm permission.Permission, cached bool) (*Decision, error) {
	if cached && e.cache != nil {
		if hit, ok := e.cache.Get(ctx, principalID, perm); ok {
			d := *hit
			e.emitAuthorize(ctx, &d)
			return &d, nil
		}
	}

	p, err := e.resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	d := &Decision{PrincipalID: p.ID, Permission: perm, Role: p.Role}
	switch {
	case !p.Active():
		d.Reason = ReasonSuspended
	case !e.registry.Catalog().Exists(perm):
		d.Reason = ReasonUnknownPermission
	case !e.registry.Exists(p.Role):
		d.Reason = ReasonUnknownRole
		e.logger.Warn("bastion: principal holds unregistered role",
			slog.String("principal", p.ID),
			slog.String("role", string(p.Role)),
		)
	case e.registry.Has(p.Role, perm):
		d.Allowed = true
		d.Reason = ReasonGranted
	default:
		d.Reason = ReasonNotGranted
	}

	// Only active principals are cached; suspension is re-read every time.
	if cached && e.cache != nil && p.Active() {
		c := *d
		e.cache.Set(ctx, principalID, perm, &c)
	}
	e.emitAuthorize(ctx, d)
	return d, nil
}

func (e *Engine) emitAuthorize(ctx context.Context, d *Decision) {
	if e.plugins != nil {
		e.plugins.EmitAfterAuthorize(ctx, d.PrincipalID, d.Permission, d.Allowed, string(d.Reason))
	}
}

func (e *Engine) resolve(ctx context.Context, principalID string) (*principal.Principal, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPrincipal, principalID)
		}
		return nil, fmt.Errorf("bastion: resolve principal %q: %w", principalID, err)
	}
	return p, nil
}

// Enforce checks a mutating action. A denial is always recorded as one
// denied audit entry and returned as ErrForbidden, ErrSuspended or
// ErrUnknownPrincipal. If that entry cannot be written the error also
// wraps ErrAuditWriteFailed. Enforce never consults the decision cache, so
// a role change committed by another process takes effect immediately.
func (e *Engine) Enforce(ctx context.Context, req *Request) (*Decision, error) {
	d, err := e.decide(ctx, req.ActorID, req.Permission, false)
	var denial error
	switch {
	case errors.Is(err, ErrUnknownPrincipal):
		d = &Decision{PrincipalID: req.ActorID, Permission: req.Permission, Reason: ReasonUnknownPrincipal}
		denial = err
	case err != nil:
		return nil, err
	case d.Allowed:
		return d, nil
	case d.Reason == ReasonSuspended:
		denial = fmt.Errorf("%w: %q", ErrSuspended, req.ActorID)
	default:
		denial = fmt.Errorf("%w: %q lacks %s", ErrForbidden, req.ActorID, req.Permission)
	}

	entry := &audit.Entry{
		ActorID:    req.ActorID,
		TargetID:   req.TargetID,
		Action:     req.Action,
		Permission: req.Permission,
		Outcome:    audit.OutcomeDenied,
		Reason:     string(d.Reason),
		Source:     SourceFromContext(ctx),
		Metadata:   copyMetadata(req.Metadata),
	}
	if err := e.appendAudit(ctx, entry); err != nil {
		e.logger.Error("bastion: denial could not be audited",
			slog.String("principal", req.ActorID),
			slog.String("action", req.Action),
			slog.String("error", err.Error()),
		)
		return d, fmt.Errorf("%w: %w", denial, err)
	}

	e.logger.Warn("bastion: access denied",
		slog.String("principal", req.ActorID),
		slog.String("target", req.TargetID),
		slog.String("action", req.Action),
		slog.String("permission", string(req.Permission)),
		slog.String("reason", string(d.Reason)),
	)
	if e.plugins != nil {
		e.plugins.EmitAccessDenied(ctx, entry)
	}
	return d, denial
}

// ──────────────────────────────────────────────────
// Administrative operations
// ──────────────────────────────────────────────────

// AssignRole replaces the target's role with newRole. The actor must hold
// user:role_assign. Validation runs actor, permission, role, then target.
// Assigning the role the target already holds succeeds without change and
// is still recorded.
func (e *Engine) AssignRole(ctx context.Context, actorID, targetID string, newRole role.Role) (*Result, error) {
	req := &Request{
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     audit.ActionAssignRole,
		Permission: permission.UserRoleAssign,
		Metadata:   map[string]string{"new_role": string(newRole)},
	}
	check := func() error {
		if !e.registry.Exists(newRole) {
			return fmt.Errorf("%w: %q", ErrUnknownRole, newRole)
		}
		return nil
	}
	res, err := e.mutate(ctx, req, check, func(p *principal.Principal, entry *audit.Entry) (bool, error) {
		entry.OldRole, entry.NewRole = p.Role, newRole
		changed := p.Role != newRole
		p.Role = newRole
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, res.Entry)
	}
	return res, nil
}

// Suspend moves the target to suspended. The actor must hold user:update.
// Suspending a suspended principal changes nothing and is still recorded.
func (e *Engine) Suspend(ctx context.Context, actorID, targetID string) (*Result, error) {
	res, err := e.setStatus(ctx, actorID, targetID, audit.ActionSuspend, principal.StatusSuspended)
	if err != nil {
		return nil, err
	}
	if e.plugins != nil {
		e.plugins.EmitPrincipalSuspended(ctx, res.Entry)
	}
	return res, nil
}

// Reactivate moves the target to active. The actor must hold user:update.
func (e *Engine) Reactivate(ctx context.Context, actorID, targetID string) (*Result, error) {
	res, err := e.setStatus(ctx, actorID, targetID, audit.ActionReactivate, principal.StatusActive)
	if err != nil {
		return nil, err
	}
	if e.plugins != nil {
		e.plugins.EmitPrincipalReactivated(ctx, res.Entry)
	}
	return res, nil
}

func (e *Engine) setStatus(ctx context.Context, actorID, targetID, action string, status principal.Status) (*Result, error) {
	req := &Request{
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     action,
		Permission: permission.UserUpdate,
	}
	return e.mutate(ctx, req, nil, func(p *principal.Principal, entry *audit.Entry) (bool, error) {
		entry.OldStatus, entry.NewStatus = p.Status, status
		changed := p.Status != status
		p.Status = status
		return changed, nil
	})
}

// mutate runs the enforce, check, read, apply, commit cycle for one target
// under the target's lock, retrying when the commit loses a version race.
func (e *Engine) mutate(ctx context.Context, req *Request, check func() error, apply func(*principal.Principal, *audit.Entry) (bool, error)) (*Result, error) {
	unlock, err := e.locks.Lock(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	attempts := e.config.commitAttempts()
	for attempt := 1; ; attempt++ {
		if _, err := e.Enforce(ctx, req); err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(); err != nil {
				return nil, err
			}
		}

		target, err := e.resolve(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		expected := target.Version
		entry := &audit.Entry{
			ActorID:    req.ActorID,
			TargetID:   req.TargetID,
			Action:     req.Action,
			Permission: req.Permission,
			Outcome:    audit.OutcomeAllowed,
			Source:     SourceFromContext(ctx),
			Metadata:   copyMetadata(req.Metadata),
		}
		changed, err := apply(target, entry)
		if err != nil {
			return nil, err
		}
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]string, 1)
		}
		entry.Metadata["changed"] = strconv.FormatBool(changed)

		err = e.commit(ctx, &store.Change{Principal: target, ExpectedVersion: expected, Entry: entry})
		if isRace(err) {
			if attempt < attempts {
				e.logger.Debug("bastion: commit lost race, retrying",
					slog.String("target", req.TargetID),
					slog.Int("attempt", attempt),
				)
				continue
			}
			return nil, fmt.Errorf("bastion: %s on %q: %w", req.Action, req.TargetID, ErrVersionConflict)
		}
		if errors.Is(err, principal.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPrincipal, req.TargetID)
		}
		if err != nil {
			e.logger.Error("bastion: mutation not committed",
				slog.String("principal", req.ActorID),
				slog.String("target", req.TargetID),
				slog.String("action", req.Action),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		if e.cache != nil {
			e.cache.InvalidatePrincipal(ctx, req.TargetID)
		}
		e.logger.Info("bastion: principal updated",
			slog.String("principal", req.ActorID),
			slog.String("target", req.TargetID),
			slog.String("action", req.Action),
			slog.Bool("changed", changed),
			slog.Int64("version", target.Version),
		)
		return &Result{Principal: target, Changed: changed, Entry: entry}, nil
	}
}

func isRace(err error) bool {
	return errors.Is(err, principal.ErrVersionConflict) || errors.Is(err, store.ErrConcurrentWrite)
}

// ──────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────

// QueryAudit returns audit entries matching filter in timestamp order.
// Each call yields a fresh cursor.
func (e *Engine) QueryAudit(ctx context.Context, filter *audit.Filter) iter.Seq2[*audit.Entry, error] {
	return e.store.QueryAudit(ctx, filter)
}

// CountAudit returns the number of audit entries matching filter.
func (e *Engine) CountAudit(ctx context.Context, filter *audit.Filter) (int64, error) {
	return e.store.CountAudit(ctx, filter)
}

// VerifyAudit walks the whole retained chain and returns the number of
// entries verified. A broken link yields an error wrapping
// audit.ErrChainBroken.
func (e *Engine) VerifyAudit(ctx context.Context) (int64, error) {
	n, err := audit.Verify(e.store.QueryAudit(ctx, nil))
	if err != nil {
		e.logger.Error("bastion: audit verification failed",
			slog.Int64("verified", n),
			slog.String("error", err.Error()),
		)
		return n, err
	}
	return n, nil
}

// PurgeAudit removes entries older than before. The actor must hold
// system:audit. Deletion and the entry recording it are one store write,
// and the new entry links to the retained chain.
func (e *Engine) PurgeAudit(ctx context.Context, actorID string, before time.Time) (int64, error) {
	if now := e.now(); before.After(now) {
		before = now
	}
	req := &Request{
		ActorID:    actorID,
		Action:     audit.ActionPurge,
		Permission: permission.SystemAudit,
		Metadata:   map[string]string{"before": before.UTC().Format(time.RFC3339Nano)},
	}
	if _, err := e.Enforce(ctx, req); err != nil {
		return 0, err
	}

	entry := &audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionPurge,
		Permission: permission.SystemAudit,
		Outcome:    audit.OutcomeAllowed,
		Source:     SourceFromContext(ctx),
		Metadata:   copyMetadata(req.Metadata),
	}
	var removed int64
	err := e.withRetry(ctx, func() error {
		n, err := e.store.PurgeAudit(ctx, before, entry)
		removed = n
		return err
	})
	if err != nil {
		e.logger.Error("bastion: audit purge failed",
			slog.String("principal", actorID),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	e.logger.Info("bastion: audit purged",
		slog.String("principal", actorID),
		slog.Int64("removed", removed),
		slog.Time("before", before),
	)
	if e.plugins != nil {
		e.plugins.EmitAuditPurged(ctx, removed, entry)
	}
	return removed, nil
}

// appendAudit appends an audit-only entry, retrying store failures with
// exponential backoff until Config.AuditRetryTimeout or ctx runs out.
func (e *Engine) appendAudit(ctx context.Context, entry *audit.Entry) error {
	return e.withRetry(ctx, func() error { return e.store.AppendAudit(ctx, entry) })
}

// commit applies a mutation and its entry. Version races are returned
// as-is for the caller to re-validate; other failures are retried.
func (e *Engine) commit(ctx context.Context, c *store.Change) error {
	return e.withRetry(ctx, func() error {
		err := e.store.Commit(ctx, c)
		if isRace(err) || errors.Is(err, principal.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
}

func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = e.config.AuditRetryTimeout

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		e.logger.Warn("bastion: audit write failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return err
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if isRace(err) || errors.Is(err, principal.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
}

func outcomeOf(allowed bool) audit.Outcome {
	if allowed {
		return audit.OutcomeAllowed
	}
	return audit.OutcomeDenied
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
