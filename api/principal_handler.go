package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

func (a *API) registerPrincipalRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("principals"))

	if err := g.GET("/principals/:principalId", a.getPrincipal,
		forge.WithSummary("Get principal"),
		forge.WithDescription("Returns a principal. Reading another principal requires user:read."),
		forge.WithOperationID("getPrincipal"),
		forge.WithRequestSchema(GetPrincipalRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Principal", &principal.Principal{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/principals/:principalId/role", a.assignRole,
		forge.WithSummary("Assign role"),
		forge.WithDescription("Replaces the principal's role. Requires user:role_assign."),
		forge.WithOperationID("assignRole"),
		forge.WithRequestSchema(AssignRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Result", &bastion.Result{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/principals/:principalId/suspend", a.suspend,
		forge.WithSummary("Suspend principal"),
		forge.WithDescription("Suspends the principal. Requires user:update."),
		forge.WithOperationID("suspendPrincipal"),
		forge.WithResponseSchema(http.StatusOK, "Result", &bastion.Result{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/principals/:principalId/reactivate", a.reactivate,
		forge.WithSummary("Reactivate principal"),
		forge.WithDescription("Reactivates a suspended principal. Requires user:update."),
		forge.WithOperationID("reactivatePrincipal"),
		forge.WithResponseSchema(http.StatusOK, "Result", &bastion.Result{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) getPrincipal(ctx forge.Context, _ *GetPrincipalRequest) (*principal.Principal, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	targetID := ctx.Param("principalId")
	if targetID != self {
		if err := a.allowed(ctx, self, permission.UserRead); err != nil {
			return nil, err
		}
	}

	p, err := a.eng.Store().GetPrincipal(ctx.Context(), targetID)
	if err != nil {
		return nil, mapError(translateNotFound(err))
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) assignRole(ctx forge.Context, req *AssignRoleRequest) (*bastion.Result, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if req.Role == "" {
		return nil, forge.BadRequest("role is required")
	}

	res, err := a.eng.AssignRole(requestContext(ctx), self, ctx.Param("principalId"), role.Role(req.Role))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return res, ctx.JSON(http.StatusOK, res)
}

func (a *API) suspend(ctx forge.Context, _ *StatusRequest) (*bastion.Result, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.eng.Suspend(requestContext(ctx), self, ctx.Param("principalId"))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return res, ctx.JSON(http.StatusOK, res)
}

func (a *API) reactivate(ctx forge.Context, _ *StatusRequest) (*bastion.Result, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.eng.Reactivate(requestContext(ctx), self, ctx.Param("principalId"))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return res, ctx.JSON(http.StatusOK, res)
}

func translateNotFound(err error) error {
	if errors.Is(err, principal.ErrNotFound) {
		return fmt.Errorf("%w: %w", bastion.ErrUnknownPrincipal, err)
	}
	return err
}
