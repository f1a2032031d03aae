package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerAuthzRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/authorize", a.authorize,
		forge.WithSummary("Authorization check"),
		forge.WithDescription("Decides whether the principal holds the permission. Used for UI visibility; not audited by default."),
		forge.WithOperationID("authzAuthorize"),
		forge.WithRequestSchema(AuthorizeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decision", bastion.Decision{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/batch", a.batchAuthorize,
		forge.WithSummary("Batch authorization check"),
		forge.WithDescription("Decides several permissions for one principal in one request."),
		forge.WithOperationID("authzBatch"),
		forge.WithRequestSchema(BatchAuthorizeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decisions", BatchAuthorizeResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) authorize(ctx forge.Context, req *AuthorizeRequest) (*bastion.Decision, error) {
	principalID, err := a.subject(ctx, req.PrincipalID)
	if err != nil {
		return nil, err
	}
	perm, err := permission.Parse(req.Permission)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid permission: %v", err))
	}

	d, err := a.eng.Authorize(requestContext(ctx), principalID, perm)
	if err != nil {
		return nil, mapError(err)
	}
	return d, ctx.JSON(http.StatusOK, d)
}

func (a *API) batchAuthorize(ctx forge.Context, req *BatchAuthorizeRequest) (*BatchAuthorizeResponse, error) {
	if len(req.Permissions) == 0 {
		return nil, forge.BadRequest("permissions cannot be empty")
	}
	principalID, err := a.subject(ctx, req.PrincipalID)
	if err != nil {
		return nil, err
	}

	perms := make([]permission.Permission, len(req.Permissions))
	for i, s := range req.Permissions {
		p, err := permission.Parse(s)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid permission %q: %v", s, err))
		}
		perms[i] = p
	}

	c := requestContext(ctx)
	resp := &BatchAuthorizeResponse{Decisions: make([]*bastion.Decision, len(perms))}
	for i, p := range perms {
		d, err := a.eng.Authorize(c, principalID, p)
		if err != nil {
			return nil, mapError(err)
		}
		resp.Decisions[i] = d
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// subject resolves whose permissions are checked. Checking another
// principal requires user:read.
func (a *API) subject(ctx forge.Context, requested string) (string, error) {
	self, err := actor(ctx)
	if err != nil {
		return "", err
	}
	if requested == "" || requested == self {
		return self, nil
	}
	if err := a.allowed(ctx, self, permission.UserRead); err != nil {
		return "", err
	}
	return requested, nil
}
