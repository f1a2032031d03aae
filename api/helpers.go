package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, bastion.ErrUnknownPrincipal), errors.Is(err, bastion.ErrUnknownRole):
		return forge.NotFound(err.Error())
	case errors.Is(err, bastion.ErrForbidden), errors.Is(err, bastion.ErrSuspended):
		return forge.Forbidden(err.Error())
	case errors.Is(err, bastion.ErrVersionConflict):
		return forge.BadRequest(err.Error())
	}
	return err
}

// fail writes the error response for err. Audit failures are reported as
// 503 so clients retry; everything else goes through mapError. A denial
// whose audit entry failed is still a 503: the denial is not on record.
func fail(ctx forge.Context, err error) error {
	if errors.Is(err, bastion.ErrAuditWriteFailed) {
		return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	}
	return mapError(err)
}

// actor returns the session principal, or a 403 when there is none.
func actor(ctx forge.Context) (string, error) {
	id := forge.UserIDFromContext(ctx.Context())
	if id == "" {
		return "", forge.Forbidden("no authenticated principal")
	}
	return id, nil
}

// requestContext stamps the client address into the engine context.
func requestContext(ctx forge.Context) context.Context {
	c := ctx.Context()
	if r := ctx.Request(); r != nil && r.RemoteAddr != "" {
		c = bastion.WithSource(c, r.RemoteAddr)
	}
	return c
}

// allowed runs a read-only check for the session principal.
func (a *API) allowed(ctx forge.Context, principalID string, perm permission.Permission) error {
	d, err := a.eng.Authorize(ctx.Context(), principalID, perm)
	if err != nil {
		return mapError(err)
	}
	if !d.Allowed {
		return forge.Forbidden("missing permission " + string(perm))
	}
	return nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
