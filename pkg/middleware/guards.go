package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/httputil"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// RequireAuth rejects unauthenticated requests with 401
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetAuthContext(r).Authenticated() {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOrganization rejects requests without an active organization
// context with 400. Implies RequireAuth.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if !authCtx.Authenticated() {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if authCtx.Organization == nil {
			httputil.WriteBadRequest(w, "no active organization")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission guards a route with a "resourceType:action" permission
// string, checked without a specific resource id. Handlers still call
// AssertCan with the concrete id before mutating a single resource.
//
// Denied → 403. A collaborator failure during the check → 500, never a
// silent deny or allow.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	parts := strings.SplitN(permission, ":", 2)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "invalid permission guard")
				return
			}

			authCtx := GetAuthContext(r)
			if !authCtx.Authenticated() {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if authCtx.Organization == nil {
				httputil.WriteBadRequest(w, "no active organization")
				return
			}

			resourceType := authz.ResourceType(parts[0])
			action := authz.Action(parts[1])

			allowed, err := authCtx.Engine.Can(r.Context(), resourceType, action, 0)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "You don't have permission to "+parts[1]+" this "+parts[0])
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
