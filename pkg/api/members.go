package api

import (
	"net/http"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/httputil"
)

// addMemberRequest adds a user to the organization
type addMemberRequest struct {
	UserID int64     `json:"user_id"`
	Role   auth.Role `json:"role"`
}

// updateRoleRequest changes a member's role
type updateRoleRequest struct {
	Role auth.Role `json:"role"`
}

// updateTeamRequest moves a member between teams; null team_id removes them
// from all teams
type updateTeamRequest struct {
	TeamID *int64 `json:"team_id"`
}

// ListMembers returns all members of the organization
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceMember, authz.ActionView, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	members, err := h.orgs.ListMembers(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// AddMember adds a user to the organization
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceMember, authz.ActionCreate, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}
	if !req.Role.IsValid() {
		httputil.WriteValidationError(w, "unknown role")
		return
	}

	member, err := h.orgs.AddMember(r.Context(), orgID, req.UserID, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, member)
}

// UpdateMemberRole changes a member's role. A member can never change their
// own role, whatever it is; that rule is absolute and checked before the
// permission engine runs.
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if authCtx.User != nil && authCtx.User.ID == userID {
		httputil.WriteForbidden(w, "You can't change your own role")
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceMember, authz.ActionUpdate, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.IsValid() {
		httputil.WriteValidationError(w, "unknown role")
		return
	}

	if err := h.orgs.UpdateMemberRole(r.Context(), orgID, userID, req.Role); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"updated": true})
}

// UpdateMemberTeam moves a member onto a team or off all teams
func (h *Handler) UpdateMemberTeam(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceMember, authz.ActionUpdate, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req updateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgs.UpdateMemberTeam(r.Context(), orgID, userID, req.TeamID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"updated": true})
}

// RemoveMember removes a user from the organization
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceMember, authz.ActionDelete, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.orgs.RemoveMember(r.Context(), orgID, userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}
