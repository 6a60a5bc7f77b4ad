package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
	"github.com/rentgrid/rentgrid/pkg/orgs"
)

type fakeOwnership struct {
	mu         sync.Mutex
	properties map[ownershipKey][]int64
	orgsByKey  map[ownershipKey]int64
	err        error
	calls      int
}

func (f *fakeOwnership) PropertyIDs(ctx context.Context, resourceType ResourceType, resourceID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.properties[ownershipKey{resourceType, resourceID}], nil
}

func (f *fakeOwnership) OrganizationID(ctx context.Context, resourceType ResourceType, resourceID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.orgsByKey[ownershipKey{resourceType, resourceID}], nil
}

type fakeAssignments struct {
	mu       sync.Mutex
	assigned map[int64]map[int64]bool // teamID -> propertyID
	err      error
	calls    int
}

func (f *fakeAssignments) IsAssigned(ctx context.Context, teamID, propertyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.assigned[teamID][propertyID], nil
}

func (f *fakeAssignments) PropertyIDsForTeam(ctx context.Context, teamID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []int64
	for id := range f.assigned[teamID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeOverrides struct {
	granted map[string]bool
	err     error
}

func overrideKey(teamID int64, rt ResourceType, action Action, resourceID int64) string {
	return fmt.Sprintf("%d|%s|%s|%d", teamID, rt, action, resourceID)
}

func (f *fakeOverrides) HasOverride(ctx context.Context, teamID int64, rt ResourceType, action Action, resourceID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.granted[overrideKey(teamID, rt, action, resourceID)], nil
}

type fakeMembers struct {
	members map[int64]*orgs.Member // userID
	calls   int
}

func (f *fakeMembers) GetMember(ctx context.Context, userID, organizationID int64) (*orgs.Member, error) {
	f.calls++
	member, ok := f.members[userID]
	if !ok {
		return nil, auth.NewNotFoundError("member", "")
	}
	return member, nil
}

type engineFixture struct {
	ownership   *fakeOwnership
	assignments *fakeAssignments
	overrides   *fakeOverrides
	members     *fakeMembers
	authorizer  *Authorizer
	org         *orgs.Organization
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	f := &engineFixture{
		ownership:   &fakeOwnership{properties: map[ownershipKey][]int64{}, orgsByKey: map[ownershipKey]int64{}},
		assignments: &fakeAssignments{assigned: map[int64]map[int64]bool{}},
		overrides:   &fakeOverrides{granted: map[string]bool{}},
		members:     &fakeMembers{members: map[int64]*orgs.Member{}},
		org:         &orgs.Organization{ID: 1, Name: "Acme Realty", AgentOwnerID: 100, Status: orgs.OrgStatusActive},
	}
	f.authorizer = NewAuthorizer(NewRoleTable(logger), f.ownership, f.assignments, f.overrides, f.members, nil, logger)
	return f
}

func (f *engineFixture) addMember(userID int64, role auth.Role, teamID *int64) {
	f.members.members[userID] = &orgs.Member{
		ID:             userID,
		UserID:         userID,
		OrganizationID: f.org.ID,
		Role:           role,
		TeamID:         teamID,
		Status:         orgs.MemberStatusActive,
	}
}

func (f *engineFixture) engineFor(userID int64) *Engine {
	return f.authorizer.NewEngine(&auth.User{ID: userID, IsActive: true}, f.org, nil)
}

func (f *engineFixture) ownProperty(propertyID int64) {
	f.ownership.orgsByKey[ownershipKey{ResourceProperty, propertyID}] = f.org.ID
}

func int64Ptr(v int64) *int64 { return &v }

func TestEngineDeniesWithoutIdentity(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("nil user", func(t *testing.T) {
		engine := f.authorizer.NewEngine(nil, f.org, nil)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("nil organization", func(t *testing.T) {
		engine := f.authorizer.NewEngine(&auth.User{ID: 5}, nil, nil)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestEngineAgentOwnerBypass(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// The agent owner has no member row at all and still gets everything.
	engine := f.engineFor(100)

	for _, rt := range ValidResourceTypes() {
		for _, action := range ValidActions() {
			allowed, err := engine.Can(ctx, rt, action, 0)
			require.NoError(t, err)
			assert.True(t, allowed, "agent owner denied %s:%s", rt, action)
		}
	}
}

func TestEngineAdminAndOwnerRolesBypassTable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(10, auth.RoleAdmin, nil)
	f.addMember(11, auth.RoleOwner, nil)
	f.ownProperty(42)

	for _, userID := range []int64{10, 11} {
		engine := f.engineFor(userID)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionDelete, 42)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestEngineRoleTableGate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	teamID := int64Ptr(7)
	f.addMember(20, auth.RoleStaff, teamID)
	f.ownProperty(42)
	f.assignments.assigned[7] = map[int64]bool{42: true}

	t.Run("staff cannot delete property even when assigned", func(t *testing.T) {
		engine := f.engineFor(20)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionDelete, 42)
		require.NoError(t, err)
		assert.False(t, allowed)
		// The role gate fails before team scoping is consulted.
		assert.Zero(t, f.assignments.calls)
	})

	t.Run("unknown role denies everything", func(t *testing.T) {
		f.addMember(21, auth.Role("intern"), nil)
		engine := f.engineFor(21)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("missing membership denies", func(t *testing.T) {
		engine := f.engineFor(999)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("inactive membership denies", func(t *testing.T) {
		f.members.members[22] = &orgs.Member{
			UserID: 22, OrganizationID: 1, Role: auth.RoleStaff, Status: orgs.MemberStatusPending,
		}
		engine := f.engineFor(22)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestEngineNoResourceIDAllowsAfterRoleGate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Team member with zero assigned properties still passes list-level
	// checks; callers filter per item afterwards.
	f.addMember(20, auth.RoleStaff, int64Ptr(7))

	engine := f.engineFor(20)
	allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 0)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEngineTeamAssignmentVerdict(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.ownProperty(1)
	f.ownProperty(2)
	f.assignments.assigned[7] = map[int64]bool{1: true}

	engine := f.engineFor(20)

	allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = engine.Can(ctx, ResourceProperty, ActionView, 2)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEnginePropertyDerivedResolution(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.assignments.assigned[7] = map[int64]bool{1: true}

	t.Run("unit on assigned property allows", func(t *testing.T) {
		f.ownership.properties[ownershipKey{ResourceUnit, 500}] = []int64{1}
		f.ownership.orgsByKey[ownershipKey{ResourceUnit, 500}] = 1

		engine := f.engineFor(20)
		allowed, err := engine.Can(ctx, ResourceUnit, ActionUpdate, 500)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unit on unassigned property denies", func(t *testing.T) {
		f.ownership.properties[ownershipKey{ResourceUnit, 501}] = []int64{2}
		f.ownership.orgsByKey[ownershipKey{ResourceUnit, 501}] = 1

		engine := f.engineFor(20)
		allowed, err := engine.Can(ctx, ResourceUnit, ActionUpdate, 501)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("tenant allows through any of its properties", func(t *testing.T) {
		f.ownership.properties[ownershipKey{ResourceTenant, 600}] = []int64{2, 1}
		f.ownership.orgsByKey[ownershipKey{ResourceTenant, 600}] = 1

		engine := f.engineFor(20)
		allowed, err := engine.Can(ctx, ResourceTenant, ActionView, 600)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unresolvable falls back to overrides", func(t *testing.T) {
		// No ownership entry for this unit: team scoping cannot apply.
		engine := f.engineFor(20)
		allowed, err := engine.Can(ctx, ResourceUnit, ActionView, 700)
		require.NoError(t, err)
		assert.False(t, allowed)

		f.overrides.granted[overrideKey(7, ResourceUnit, ActionView, 700)] = true
		engine = f.engineFor(20)
		allowed, err = engine.Can(ctx, ResourceUnit, ActionView, 700)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestEngineOverrideVerdictForUnscopedTypes(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))

	engine := f.engineFor(20)
	allowed, err := engine.Can(ctx, ResourceReport, ActionView, 900)
	require.NoError(t, err)
	assert.False(t, allowed)

	f.overrides.granted[overrideKey(7, ResourceReport, ActionView, 900)] = true
	engine = f.engineFor(20)
	allowed, err = engine.Can(ctx, ResourceReport, ActionView, 900)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEngineTeamlessMemberAllowedByRole(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(30, auth.RoleMember, nil)
	f.ownProperty(42)

	engine := f.engineFor(30)

	allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 42)
	require.NoError(t, err)
	assert.True(t, allowed)

	// The role table still gates first.
	allowed, err = engine.Can(ctx, ResourceProperty, ActionUpdate, 42)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEngineCrossOrganizationIsolation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Property 42 belongs to another organization.
	f.ownership.orgsByKey[ownershipKey{ResourceProperty, 42}] = 2

	t.Run("agent owner denied", func(t *testing.T) {
		engine := f.engineFor(100)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 42)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("admin denied", func(t *testing.T) {
		f.addMember(10, auth.RoleAdmin, nil)
		engine := f.engineFor(10)
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 42)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestEngineMemoization(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.ownProperty(1)
	f.assignments.assigned[7] = map[int64]bool{1: true}

	engine := f.engineFor(20)

	for i := 0; i < 5; i++ {
		allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 1)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	assert.Equal(t, 1, f.assignments.calls)
	assert.Equal(t, 1, f.members.calls)

	// A different key runs the decision again.
	_, err := engine.Can(ctx, ResourceProperty, ActionUpdate, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.assignments.calls)
}

func TestEngineErrorsPropagate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.ownProperty(1)
	f.assignments.err = errors.New("connection refused")

	engine := f.engineFor(20)
	_, err := engine.Can(ctx, ResourceProperty, ActionView, 1)
	require.Error(t, err)
	assert.False(t, auth.IsAuthorization(err))

	// Errors are not memoized; a recovered store is consulted again.
	f.assignments.mu.Lock()
	f.assignments.err = nil
	f.assignments.assigned[7] = map[int64]bool{1: true}
	f.assignments.mu.Unlock()

	allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAssertCan(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, nil)

	engine := f.engineFor(20)

	require.NoError(t, engine.AssertCan(ctx, ResourceProperty, ActionView, 0))

	err := engine.AssertCan(ctx, ResourceProperty, ActionDelete, 0)
	require.Error(t, err)
	assert.True(t, auth.IsAuthorization(err))
	assert.Equal(t, "You don't have permission to delete this property", err.Error())
}

func TestAccessiblePropertyIDs(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(10, auth.RoleAdmin, nil)
	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.addMember(30, auth.RoleMember, nil)
	f.assignments.assigned[7] = map[int64]bool{1: true, 3: true}

	t.Run("agent owner unrestricted", func(t *testing.T) {
		_, unrestricted, err := f.engineFor(100).AccessiblePropertyIDs(ctx)
		require.NoError(t, err)
		assert.True(t, unrestricted)
	})

	t.Run("admin unrestricted", func(t *testing.T) {
		_, unrestricted, err := f.engineFor(10).AccessiblePropertyIDs(ctx)
		require.NoError(t, err)
		assert.True(t, unrestricted)
	})

	t.Run("team member gets team properties", func(t *testing.T) {
		ids, unrestricted, err := f.engineFor(20).AccessiblePropertyIDs(ctx)
		require.NoError(t, err)
		assert.False(t, unrestricted)
		assert.ElementsMatch(t, []int64{1, 3}, ids)
	})

	t.Run("teamless member gets none", func(t *testing.T) {
		ids, unrestricted, err := f.engineFor(30).AccessiblePropertyIDs(ctx)
		require.NoError(t, err)
		assert.False(t, unrestricted)
		assert.Empty(t, ids)
	})

	t.Run("anonymous gets none", func(t *testing.T) {
		ids, unrestricted, err := f.authorizer.NewEngine(nil, nil, nil).AccessiblePropertyIDs(ctx)
		require.NoError(t, err)
		assert.False(t, unrestricted)
		assert.Empty(t, ids)
	})
}

func TestEngineConcurrentChecks(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addMember(20, auth.RoleStaff, int64Ptr(7))
	f.ownProperty(1)
	f.assignments.assigned[7] = map[int64]bool{1: true}

	engine := f.engineFor(20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := engine.Can(ctx, ResourceProperty, ActionView, 1)
			assert.NoError(t, err)
			assert.True(t, allowed)
		}()
	}
	wg.Wait()
}
