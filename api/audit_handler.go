package api

import (
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerAuditRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("audit"))

	if err := g.GET("/audit", a.listAudit,
		forge.WithSummary("Query audit log"),
		forge.WithDescription("Returns audit entries in timestamp order. Requires system:audit."),
		forge.WithOperationID("listAudit"),
		forge.WithRequestSchema(ListAuditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entries", []*audit.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/audit/verify", a.verifyAudit,
		forge.WithSummary("Verify audit chain"),
		forge.WithDescription("Walks the retained hash chain and reports the first broken link. Requires system:audit."),
		forge.WithOperationID("verifyAudit"),
		forge.WithResponseSchema(http.StatusOK, "Verification", VerifyAuditResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/audit/purge", a.purgeAudit,
		forge.WithSummary("Purge audit log"),
		forge.WithDescription("Removes entries older than the cutoff. The purge itself is recorded. Requires system:audit."),
		forge.WithOperationID("purgeAudit"),
		forge.WithRequestSchema(PurgeAuditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Purge result", PurgeAuditResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAudit(ctx forge.Context, req *ListAuditRequest) ([]*audit.Entry, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.allowed(ctx, self, permission.SystemAudit); err != nil {
		return nil, err
	}

	filter := &audit.Filter{
		ActorID:    req.ActorID,
		TargetID:   req.TargetID,
		Principal:  req.Principal,
		Action:     req.Action,
		Permission: permission.Permission(req.Permission),
		Outcome:    audit.Outcome(req.Outcome),
		Limit:      defaultLimit(req.Limit),
	}
	if req.Outcome != "" && !filter.Outcome.Valid() {
		return nil, forge.BadRequest("invalid outcome")
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	entries := make([]*audit.Entry, 0, filter.Limit)
	for e, err := range a.eng.QueryAudit(ctx.Context(), filter) {
		if err != nil {
			return nil, mapError(err)
		}
		entries = append(entries, e)
	}
	return entries, ctx.JSON(http.StatusOK, entries)
}

func (a *API) verifyAudit(ctx forge.Context, _ *struct{}) (*VerifyAuditResponse, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.allowed(ctx, self, permission.SystemAudit); err != nil {
		return nil, err
	}

	n, err := a.eng.VerifyAudit(ctx.Context())
	resp := &VerifyAuditResponse{Verified: n, Intact: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) purgeAudit(ctx forge.Context, req *PurgeAuditRequest) (*PurgeAuditResponse, error) {
	self, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	before, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		return nil, forge.BadRequest("invalid before timestamp")
	}

	removed, err := a.eng.PurgeAudit(requestContext(ctx), self, before)
	if err != nil {
		return nil, fail(ctx, err)
	}
	resp := &PurgeAuditResponse{Removed: removed}
	return resp, ctx.JSON(http.StatusOK, resp)
}
