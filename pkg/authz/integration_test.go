package authz

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

// seedTeamFixture inserts a user, organization, team, and n properties, all
// removed again when the test finishes. Names carry a nanosecond suffix so
// parallel packages sharing one database do not collide.
func seedTeamFixture(t *testing.T, db *sql.DB, n int) (teamID int64, propertyIDs []int64) {
	t.Helper()

	ctx := context.Background()
	suffix := time.Now().UnixNano()

	var userID int64
	err := db.QueryRowContext(ctx,
		`INSERT INTO users (email) VALUES ($1) RETURNING id`,
		fmt.Sprintf("it-%d@example.com", suffix)).Scan(&userID)
	require.NoError(t, err)

	var orgID int64
	err = db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, slug, agent_owner_id) VALUES ($1, $2, $3) RETURNING id`,
		fmt.Sprintf("it-org-%d", suffix), fmt.Sprintf("it-org-%d", suffix), userID).Scan(&orgID)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
		db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	err = db.QueryRowContext(ctx,
		`INSERT INTO teams (organization_id, name) VALUES ($1, $2) RETURNING id`,
		orgID, fmt.Sprintf("it-team-%d", suffix)).Scan(&teamID)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		var propertyID int64
		err = db.QueryRowContext(ctx,
			`INSERT INTO properties (organization_id, name) VALUES ($1, $2) RETURNING id`,
			orgID, fmt.Sprintf("it-property-%d-%d", suffix, i)).Scan(&propertyID)
		require.NoError(t, err)
		propertyIDs = append(propertyIDs, propertyID)
	}

	return teamID, propertyIDs
}

func TestAssignmentStoreIntegration(t *testing.T) {
	db := RequireDatabase(t)
	ctx := context.Background()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := NewAssignmentStore(db, logger)

	teamID, props := seedTeamFixture(t, db, 3)
	p1, p2, p3 := props[0], props[1], props[2]

	added, removed, err := store.Assign(ctx, teamID, []int64{p1, p2})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Zero(t, removed)

	assigned, err := store.IsAssigned(ctx, teamID, p1)
	require.NoError(t, err)
	assert.True(t, assigned)

	assigned, err = store.IsAssigned(ctx, teamID, p3)
	require.NoError(t, err)
	assert.False(t, assigned)

	// Replaying the same set changes nothing.
	added, removed, err = store.Assign(ctx, teamID, []int64{p1, p2})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, removed)

	added, removed, err = store.Assign(ctx, teamID, []int64{p2, p3})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	ids, err := store.PropertyIDsForTeam(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, sortedIDs(p2, p3), ids)

	// A property from another organization poisons the whole call.
	_, foreignProps := seedTeamFixture(t, db, 1)
	_, _, err = store.Assign(ctx, teamID, []int64{p2, foreignProps[0]})
	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))

	ids, err = store.PropertyIDsForTeam(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, sortedIDs(p2, p3), ids)
}

func TestOverrideStoreIntegration(t *testing.T) {
	db := RequireDatabase(t)
	ctx := context.Background()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := NewOverrideStore(db, logger)

	teamID, props := seedTeamFixture(t, db, 1)
	resourceID := props[0]

	has, err := store.HasOverride(ctx, teamID, ResourceReport, ActionExport, resourceID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Grant(ctx, teamID, ResourceReport, ActionExport, resourceID))
	// Granting again is a no-op, not a conflict.
	require.NoError(t, store.Grant(ctx, teamID, ResourceReport, ActionExport, resourceID))

	has, err = store.HasOverride(ctx, teamID, ResourceReport, ActionExport, resourceID)
	require.NoError(t, err)
	assert.True(t, has)

	overrides, err := store.ListOverrides(ctx, teamID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, ResourceReport, overrides[0].ResourceType)
	assert.Equal(t, ActionExport, overrides[0].Action)
	assert.Equal(t, resourceID, overrides[0].ResourceID)

	require.NoError(t, store.Revoke(ctx, teamID, ResourceReport, ActionExport, resourceID))
	// Revoking a grant that no longer exists succeeds without change.
	require.NoError(t, store.Revoke(ctx, teamID, ResourceReport, ActionExport, resourceID))

	has, err = store.HasOverride(ctx, teamID, ResourceReport, ActionExport, resourceID)
	require.NoError(t, err)
	assert.False(t, has)
}

func sortedIDs(ids ...int64) []int64 {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
