// Package middleware provides HTTP authorization middleware for Bastion.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// Require allows the request only if the session principal holds perm.
// It is a read-only check: use it on routes that render or fetch data.
// Mutating routes should use RequireAction so denials are audited.
func Require(eng *bastion.Engine, perm permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principalID := forge.UserIDFromContext(ctx.Context())
			if principalID == "" {
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}
			d, err := eng.Authorize(ctx.Context(), principalID, perm)
			if err != nil || !d.Allowed {
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}
			return next(ctx)
		}
	}
}

// RequireAction allows the request only if the session principal holds
// perm, recording any denial in the audit log under action. The target is
// taken from the route parameter targetParam, if set.
func RequireAction(eng *bastion.Engine, action string, perm permission.Permission, targetParam string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			req := &bastion.Request{
				ActorID:    forge.UserIDFromContext(ctx.Context()),
				Action:     action,
				Permission: perm,
			}
			if targetParam != "" {
				req.TargetID = ctx.Param(targetParam)
			}
			c := ctx.Context()
			if r := ctx.Request(); r != nil && r.RemoteAddr != "" {
				c = bastion.WithSource(c, r.RemoteAddr)
			}

			if req.ActorID == "" {
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}
			if _, err := eng.Enforce(c, req); err != nil {
				if errors.Is(err, bastion.ErrAuditWriteFailed) {
					return denyResponse(ctx, http.StatusServiceUnavailable, "audit unavailable")
				}
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if the session principal holds ANY of perms.
func RequireAny(eng *bastion.Engine, perms ...permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			principalID := forge.UserIDFromContext(ctx.Context())
			if principalID != "" {
				for _, p := range perms {
					d, err := eng.Authorize(ctx.Context(), principalID, p)
					if err == nil && d.Allowed {
						return next(ctx)
					}
				}
			}
			return denyResponse(ctx, http.StatusForbidden, "access denied")
		}
	}
}

func denyResponse(ctx forge.Context, status int, msg string) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}
