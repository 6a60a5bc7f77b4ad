package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

// AssignmentChecker is the engine's view of team-property assignments
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, teamID, propertyID int64) (bool, error)
	PropertyIDsForTeam(ctx context.Context, teamID int64) ([]int64, error)
}

// OverrideChecker is the engine's view of per-resource grants
type OverrideChecker interface {
	HasOverride(ctx context.Context, teamID int64, resourceType ResourceType, action Action, resourceID int64) (bool, error)
}

// PropertyResolver is the engine's view of resource ownership
type PropertyResolver interface {
	PropertyIDs(ctx context.Context, resourceType ResourceType, resourceID int64) ([]int64, error)
	OrganizationID(ctx context.Context, resourceType ResourceType, resourceID int64) (int64, error)
}

// MemberLookup resolves a user's membership in an organization
type MemberLookup interface {
	GetMember(ctx context.Context, userID, organizationID int64) (*orgs.Member, error)
}

// Authorizer holds the long-lived collaborators shared by all requests and
// builds per-request Engines.
type Authorizer struct {
	table       *RoleTable
	ownership   PropertyResolver
	assignments AssignmentChecker
	overrides   OverrideChecker
	members     MemberLookup
	metrics     *observability.Metrics
	logger      *observability.Logger
	tracer      trace.Tracer
}

// NewAuthorizer creates an authorizer. Metrics may be nil when metrics are
// disabled.
func NewAuthorizer(
	table *RoleTable,
	ownership PropertyResolver,
	assignments AssignmentChecker,
	overrides OverrideChecker,
	members MemberLookup,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Authorizer {
	return &Authorizer{
		table:       table,
		ownership:   ownership,
		assignments: assignments,
		overrides:   overrides,
		members:     members,
		metrics:     metrics,
		logger:      logger.WithField("component", "authz"),
		tracer:      otel.Tracer("rentgrid/authz"),
	}
}

// Engine decides permissions for one (user, organization) pair over the
// lifetime of one request. Decisions are memoized per engine since a single
// request often re-checks the same permission while filtering lists;
// identical concurrent checks are collapsed through singleflight.
//
// An Engine is cheap to construct and must not outlive its request.
type Engine struct {
	a    *Authorizer
	user *auth.User
	org  *orgs.Organization

	mu           sync.Mutex
	member       *orgs.Member
	memberLoaded bool
	memo         map[string]bool
	group        singleflight.Group
}

// NewEngine builds a request-scoped engine. member may be nil; the engine
// looks the membership up on first use and caches the result, including the
// negative case.
func (a *Authorizer) NewEngine(user *auth.User, org *orgs.Organization, member *orgs.Member) *Engine {
	return &Engine{
		a:            a,
		user:         user,
		org:          org,
		member:       member,
		memberLoaded: member != nil,
		memo:         make(map[string]bool),
	}
}

// Can reports whether the engine's user may perform action on the resource.
// resourceID 0 means the check is not about a specific resource (list or
// create calls). Errors from collaborators propagate unchanged; an error
// never silently becomes a deny.
func (e *Engine) Can(ctx context.Context, resourceType ResourceType, action Action, resourceID int64) (bool, error) {
	if e.user == nil || e.org == nil {
		return false, nil
	}

	key := fmt.Sprintf("%s|%s|%d", resourceType, action, resourceID)

	e.mu.Lock()
	if allowed, ok := e.memo[key]; ok {
		e.mu.Unlock()
		if e.a.metrics != nil {
			e.a.metrics.AuthzCacheHitsTotal.Inc()
		}
		return allowed, nil
	}
	e.mu.Unlock()

	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		allowed, err := e.decide(ctx, resourceType, action, resourceID)
		if err != nil {
			return false, err
		}

		if e.a.metrics != nil {
			e.a.metrics.ObserveAuthzDecision(string(resourceType), string(action), allowed, time.Since(start))
		}

		e.mu.Lock()
		e.memo[key] = allowed
		e.mu.Unlock()

		return allowed, nil
	})
	if err != nil {
		return false, err
	}

	return result.(bool), nil
}

// decide runs the decision steps in their fixed order
func (e *Engine) decide(ctx context.Context, resourceType ResourceType, action Action, resourceID int64) (allowed bool, err error) {
	ctx, span := e.a.tracer.Start(ctx, "authz.decide",
		trace.WithAttributes(
			attribute.String("authz.resource_type", string(resourceType)),
			attribute.String("authz.action", string(action)),
			attribute.Int64("authz.resource_id", resourceID),
		))
	defer func() {
		span.SetAttributes(attribute.Bool("authz.allowed", allowed))
		span.End()
	}()

	// Cross-organization isolation comes before every allow rule: a
	// resource owned elsewhere is invisible even to the agent owner.
	if resourceID != 0 {
		ownerOrgID, err := e.a.ownership.OrganizationID(ctx, resourceType, resourceID)
		if err != nil {
			return false, err
		}
		if ownerOrgID != 0 && ownerOrgID != e.org.ID {
			return false, nil
		}
	}

	if e.user.ID == e.org.AgentOwnerID {
		return true, nil
	}

	member, err := e.loadMember(ctx)
	if err != nil {
		return false, err
	}
	if member == nil || member.Status != orgs.MemberStatusActive {
		return false, nil
	}

	if member.Role == auth.RoleAdmin || member.Role == auth.RoleOwner {
		return true, nil
	}

	if !e.a.table.Allows(member.Role, resourceType, action) {
		return false, nil
	}

	// No specific resource to scope against. Team members with an empty
	// property set still pass here; list call sites rely on that and
	// filter per item afterwards.
	if resourceID == 0 {
		return true, nil
	}

	if member.TeamID == nil {
		return true, nil
	}
	teamID := *member.TeamID

	if resourceType == ResourceProperty {
		return e.a.assignments.IsAssigned(ctx, teamID, resourceID)
	}

	if resourceType.PropertyDerived() {
		propertyIDs, err := e.a.ownership.PropertyIDs(ctx, resourceType, resourceID)
		if err != nil {
			return false, err
		}
		if len(propertyIDs) > 0 {
			for _, propertyID := range propertyIDs {
				assigned, err := e.a.assignments.IsAssigned(ctx, teamID, propertyID)
				if err != nil {
					return false, err
				}
				if assigned {
					return true, nil
				}
			}
			return false, nil
		}
		// No owning property resolved; only an explicit grant can help.
	}

	return e.a.overrides.HasOverride(ctx, teamID, resourceType, action, resourceID)
}

// loadMember resolves the membership once per engine, caching the negative
// result too. A missing membership is not an error here; it simply denies.
func (e *Engine) loadMember(ctx context.Context) (*orgs.Member, error) {
	e.mu.Lock()
	if e.memberLoaded {
		member := e.member
		e.mu.Unlock()
		return member, nil
	}
	e.mu.Unlock()

	member, err := e.a.members.GetMember(ctx, e.user.ID, e.org.ID)
	if err != nil {
		if auth.IsNotFound(err) {
			member = nil
		} else {
			return nil, err
		}
	}

	e.mu.Lock()
	e.member = member
	e.memberLoaded = true
	e.mu.Unlock()

	return member, nil
}

// AssertCan is Can in guard form: a deny becomes an AuthorizationError. Use
// it immediately before mutating operations; use Can for filtering where
// silent exclusion is the right outcome. The error message never explains
// which step denied.
func (e *Engine) AssertCan(ctx context.Context, resourceType ResourceType, action Action, resourceID int64) error {
	allowed, err := e.Can(ctx, resourceType, action, resourceID)
	if err != nil {
		return err
	}
	if !allowed {
		return auth.NewAuthorizationError(string(resourceType), string(action))
	}
	return nil
}

// AccessiblePropertyIDs returns the property ids the user may access.
// unrestricted means "every property in the organization"; the caller
// queries the full set itself rather than the engine enumerating it.
func (e *Engine) AccessiblePropertyIDs(ctx context.Context) (ids []int64, unrestricted bool, err error) {
	if e.user == nil || e.org == nil {
		return nil, false, nil
	}

	if e.user.ID == e.org.AgentOwnerID {
		return nil, true, nil
	}

	member, err := e.loadMember(ctx)
	if err != nil {
		return nil, false, err
	}
	if member == nil || member.Status != orgs.MemberStatusActive {
		return nil, false, nil
	}

	if member.Role == auth.RoleAdmin || member.Role == auth.RoleOwner {
		return nil, true, nil
	}

	if member.TeamID != nil {
		ids, err := e.a.assignments.PropertyIDsForTeam(ctx, *member.TeamID)
		if err != nil {
			return nil, false, err
		}
		return ids, false, nil
	}

	return nil, false, nil
}

// Member exposes the cached membership for handlers that need the role,
// loading it if no check has run yet.
func (e *Engine) Member(ctx context.Context) (*orgs.Member, error) {
	if e.user == nil || e.org == nil {
		return nil, nil
	}
	return e.loadMember(ctx)
}
