package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func (a *API) registerCatalogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("catalog"))

	if err := g.GET("/roles", a.listRoles,
		forge.WithSummary("List roles"),
		forge.WithDescription("Returns the role matrix, highest rank first."),
		forge.WithOperationID("listRoles"),
		forge.WithResponseSchema(http.StatusOK, "Role list", []role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/permissions", a.listPermissions,
		forge.WithSummary("List permissions"),
		forge.WithDescription("Returns the permission catalog in declaration order."),
		forge.WithOperationID("listPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permission list", []permission.Definition{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listRoles(ctx forge.Context, _ *struct{}) ([]role.Definition, error) {
	roles := a.eng.Roles()
	return roles, ctx.JSON(http.StatusOK, roles)
}

func (a *API) listPermissions(ctx forge.Context, _ *struct{}) ([]permission.Definition, error) {
	perms := a.eng.Catalog().All()
	return perms, ctx.JSON(http.StatusOK, perms)
}
