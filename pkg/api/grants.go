package api

import (
	"net/http"

	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/httputil"
)

// grantRequest identifies one per-resource permission tuple
type grantRequest struct {
	ResourceType authz.ResourceType `json:"resource_type"`
	ResourceID   int64              `json:"resource_id"`
	Action       authz.Action       `json:"action"`
}

func (g *grantRequest) validate(w http.ResponseWriter) bool {
	if !g.ResourceType.IsValid() {
		httputil.WriteValidationError(w, "unknown resource type")
		return false
	}
	if !g.Action.IsValid() {
		httputil.WriteValidationError(w, "unknown action")
		return false
	}
	return httputil.RequirePositive(w, g.ResourceID, "resource_id")
}

// ListGrants returns all explicit grants held by a team
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	team, ok := h.requestTeam(w, r, orgID)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionView, team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	grants, err := h.overrides.ListOverrides(r.Context(), team.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if grants == nil {
		grants = []authz.Override{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"grants": grants})
}

// CreateGrant records an explicit per-resource permission for a team.
// Granting an existing permission succeeds without change.
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	team, ok := h.requestTeam(w, r, orgID)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionUpdate, team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	if err := h.overrides.Grant(r.Context(), team.ID, req.ResourceType, req.Action, req.ResourceID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{"granted": true})
}

// RevokeGrant removes an explicit per-resource permission. Revoking a grant
// that does not exist succeeds without change.
func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	team, ok := h.requestTeam(w, r, orgID)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionUpdate, team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	if err := h.overrides.Revoke(r.Context(), team.ID, req.ResourceType, req.Action, req.ResourceID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}
