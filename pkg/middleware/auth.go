// Package middleware provides the authentication middleware that turns a
// session token into a request-scoped auth context, plus the guard helpers
// route handlers compose in front of protected endpoints.
package middleware

import (
	"net/http"
	"strings"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/authz"
	"github.com/rentgrid/rentgrid/pkg/contextkeys"
	"github.com/rentgrid/rentgrid/pkg/observability"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

// SessionCookieName is the cookie fallback for browser clients
const SessionCookieName = "rentgrid_session"

// AuthContext carries everything downstream handlers need about the caller.
// A request always has one attached after AuthContextMiddleware runs; an
// anonymous request has every field nil except Engine, which denies all.
type AuthContext struct {
	User         *auth.User
	Organization *orgs.Organization
	Member       *orgs.Member
	Team         *orgs.Team
	Engine       *authz.Engine
}

// Authenticated reports whether a user was resolved
func (a *AuthContext) Authenticated() bool {
	return a.User != nil
}

// AuthMiddleware resolves sessions into auth contexts
type AuthMiddleware struct {
	sessions   auth.SessionResolver
	users      auth.UserLookup
	orgs       orgs.Service
	authorizer *authz.Authorizer
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewAuthMiddleware creates the authentication middleware. metrics may be
// nil when metrics are disabled.
func NewAuthMiddleware(
	sessions auth.SessionResolver,
	users auth.UserLookup,
	orgService orgs.Service,
	authorizer *authz.Authorizer,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:   sessions,
		users:      users,
		orgs:       orgService,
		authorizer: authorizer,
		logger:     logger.WithField("component", "auth_middleware"),
		metrics:    metrics,
	}
}

// extractToken pulls the session token from the Authorization header or the
// session cookie. Header wins when both are present.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
		return ""
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware attaches an AuthContext to every request. Resolution failures
// never reject the request here; they degrade to an anonymous context and
// the guards downstream decide what that means for the route.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := m.resolve(r)
		if authCtx.Engine == nil {
			// Anonymous contexts still carry an engine; it denies everything.
			authCtx.Engine = m.authorizer.NewEngine(authCtx.User, authCtx.Organization, authCtx.Member)
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		if authCtx.User != nil {
			ctx = contextkeys.WithUserID(ctx, formatID(authCtx.User.ID))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) *AuthContext {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	anonymous := &AuthContext{}

	token := extractToken(r)
	if token == "" {
		m.observeResolution("anonymous")
		return anonymous
	}

	session, err := m.sessions.ResolveSession(ctx, token)
	if err != nil {
		if !auth.IsNotFound(err) {
			logger.WithError(err).Warn("session resolution failed")
			m.observeResolution("error")
		} else {
			m.observeResolution("invalid_token")
		}
		return anonymous
	}
	if session.Expired() {
		m.observeResolution("expired")
		return anonymous
	}

	// Best-effort activity stamp for idle-session reporting.
	if toucher, ok := m.sessions.(auth.SessionToucher); ok {
		if err := toucher.TouchSession(ctx, token); err != nil {
			logger.WithError(err).Warn("session touch failed")
		}
	}

	user, err := m.users.GetUser(ctx, session.UserID)
	if err != nil || !user.IsActive {
		if err != nil && !auth.IsNotFound(err) {
			logger.WithError(err).Warn("user lookup failed")
		}
		m.observeResolution("no_user")
		return anonymous
	}

	authCtx := &AuthContext{User: user}

	// Organization context is best effort: a failed org lookup leaves the
	// request authenticated but org-less, and RequireOrganization catches
	// it on routes that need one.
	if session.OrganizationID != nil {
		org, err := m.orgs.GetOrganization(ctx, *session.OrganizationID)
		if err != nil {
			logger.WithError(err).WithField("organization_id", *session.OrganizationID).
				Warn("organization lookup failed, proceeding without organization context")
		} else if org.Status == orgs.OrgStatusActive {
			authCtx.Organization = org

			member, err := m.orgs.GetMember(ctx, user.ID, org.ID)
			if err != nil && !auth.IsNotFound(err) {
				logger.WithError(err).Warn("member lookup failed")
			} else if err == nil {
				authCtx.Member = member
			}

			// The session's team selection is honored only when the
			// team actually belongs to the active organization.
			if session.TeamID != nil {
				team, err := m.orgs.GetTeam(ctx, *session.TeamID)
				if err != nil && !auth.IsNotFound(err) {
					logger.WithError(err).Warn("team lookup failed")
				} else if err == nil && team.OrganizationID == org.ID {
					authCtx.Team = team
				}
			}
		}
	}

	authCtx.Engine = m.authorizer.NewEngine(authCtx.User, authCtx.Organization, authCtx.Member)
	m.observeResolution("ok")
	return authCtx
}

func (m *AuthMiddleware) observeResolution(outcome string) {
	if m.metrics != nil {
		m.metrics.SessionResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// GetAuthContext retrieves the auth context attached by the middleware.
// Returns an empty context when the middleware did not run.
func GetAuthContext(r *http.Request) *AuthContext {
	if authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*AuthContext); ok && authCtx != nil {
		return authCtx
	}
	return &AuthContext{}
}
