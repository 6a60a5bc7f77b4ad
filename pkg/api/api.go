// Package api exposes the management HTTP API: team administration,
// team-to-property assignment, per-resource permission grants, and member
// administration, all scoped under one organization.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/httputil"
	"github.com/rentgrid/rentgrid/pkg/middleware"
	"github.com/rentgrid/rentgrid/pkg/observability"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

// Handler serves the management API
type Handler struct {
	orgs        orgs.Service
	assignments *authz.AssignmentStore
	overrides   *authz.OverrideStore
	logger      *observability.Logger
}

// NewHandler creates the management API handler
func NewHandler(
	orgService orgs.Service,
	assignments *authz.AssignmentStore,
	overrides *authz.OverrideStore,
	logger *observability.Logger,
) *Handler {
	return &Handler{
		orgs:        orgService,
		assignments: assignments,
		overrides:   overrides,
		logger:      logger.WithField("component", "api"),
	}
}

// RegisterRoutes mounts the management API under /api/v1. Every route
// requires an authenticated caller with an active organization; handlers do
// their own fine-grained permission checks on top.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1/orgs/{org_id}").Subrouter()
	api.Use(middleware.RequireOrganization)

	// Teams
	api.HandleFunc("/teams", h.ListTeams).Methods(http.MethodGet)
	api.HandleFunc("/teams", h.CreateTeam).Methods(http.MethodPost)
	api.HandleFunc("/teams/{team_id}", h.GetTeam).Methods(http.MethodGet)
	api.HandleFunc("/teams/{team_id}", h.UpdateTeam).Methods(http.MethodPut)
	api.HandleFunc("/teams/{team_id}", h.DeleteTeam).Methods(http.MethodDelete)

	// Team property assignments
	api.HandleFunc("/teams/{team_id}/properties", h.GetTeamProperties).Methods(http.MethodGet)
	api.HandleFunc("/teams/{team_id}/properties", h.AssignTeamProperties).Methods(http.MethodPut)

	// Per-resource permission grants
	api.HandleFunc("/teams/{team_id}/grants", h.ListGrants).Methods(http.MethodGet)
	api.HandleFunc("/teams/{team_id}/grants", h.CreateGrant).Methods(http.MethodPost)
	api.HandleFunc("/teams/{team_id}/grants", h.RevokeGrant).Methods(http.MethodDelete)

	// Members
	api.HandleFunc("/members", h.ListMembers).Methods(http.MethodGet)
	api.HandleFunc("/members", h.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/members/{user_id}/role", h.UpdateMemberRole).Methods(http.MethodPut)
	api.HandleFunc("/members/{user_id}/team", h.UpdateMemberTeam).Methods(http.MethodPut)
	api.HandleFunc("/members/{user_id}", h.RemoveMember).Methods(http.MethodDelete)
}

// requestOrg resolves the path organization and checks it is the caller's
// active organization. The path segment exists so URLs are unambiguous; it
// never widens access beyond the session's organization.
func (h *Handler) requestOrg(w http.ResponseWriter, r *http.Request) (*middleware.AuthContext, int64, bool) {
	authCtx := middleware.GetAuthContext(r)

	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return nil, 0, false
	}

	if authCtx.Organization == nil || authCtx.Organization.ID != orgID {
		httputil.WriteForbidden(w, "organization mismatch")
		return nil, 0, false
	}

	return authCtx, orgID, true
}

// requestTeam loads a team and checks it belongs to the organization. A
// team from another organization reads as not found, never as forbidden.
func (h *Handler) requestTeam(w http.ResponseWriter, r *http.Request, orgID int64) (*orgs.Team, bool) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return nil, false
	}

	team, err := h.orgs.GetTeam(r.Context(), teamID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	if team.OrganizationID != orgID {
		httputil.WriteNotFoundError(w, "team not found")
		return nil, false
	}

	return team, true
}

// writeServiceError maps domain errors to HTTP status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	case auth.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case auth.IsAuthorization(err):
		httputil.WriteForbidden(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
