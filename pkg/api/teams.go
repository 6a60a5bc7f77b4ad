package api

import (
	"net/http"

	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/httputil"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

// ListTeams returns all teams in the organization
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionView, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	teams, err := h.orgs.ListTeams(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"teams": teams})
}

// CreateTeam creates a team in the organization
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionCreate, 0); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req orgs.CreateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	team := &orgs.Team{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
	}
	if err := h.orgs.CreateTeam(r.Context(), team); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, team)
}

// GetTeam returns one team
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
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

	httputil.WriteSuccess(w, team)
}

// UpdateTeam updates a team's name and description
func (h *Handler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
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

	var req orgs.UpdateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.Description != nil {
		team.Description = *req.Description
	}

	if err := h.orgs.UpdateTeam(r.Context(), team); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, team)
}

// DeleteTeam deletes a team
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	team, ok := h.requestTeam(w, r, orgID)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionDelete, team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.orgs.DeleteTeam(r.Context(), team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// GetTeamProperties returns the property ids assigned to a team
func (h *Handler) GetTeamProperties(w http.ResponseWriter, r *http.Request) {
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

	ids, err := h.assignments.PropertyIDsForTeam(r.Context(), team.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"property_ids": ids})
}

// AssignTeamProperties replaces the team's property set in full
func (h *Handler) AssignTeamProperties(w http.ResponseWriter, r *http.Request) {
	authCtx, orgID, ok := h.requestOrg(w, r)
	if !ok {
		return
	}

	team, ok := h.requestTeam(w, r, orgID)
	if !ok {
		return
	}

	if err := authCtx.Engine.AssertCan(r.Context(), authz.ResourceTeam, authz.ActionAssign, team.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req struct {
		PropertyIDs []int64 `json:"property_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	added, removed, err := h.assignments.Assign(r.Context(), team.ID, req.PropertyIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"added":   added,
		"removed": removed,
	})
}
