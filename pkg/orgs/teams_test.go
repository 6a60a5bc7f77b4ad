package orgs

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentgrid/rentgrid/pkg/auth"
)

func TestCreateTeam(t *testing.T) {
	svc, mock := newServiceTest(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO teams (organization_id, name, description, created_at, updated_at)`)).
			WithArgs(int64(1), "North Portfolio", "northern properties").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

		team := &Team{OrganizationID: 1, Name: "North Portfolio", Description: "northern properties"}
		require.NoError(t, svc.CreateTeam(ctx, team))
		assert.Equal(t, int64(7), team.ID)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		err := svc.CreateTeam(ctx, &Team{OrganizationID: 1, Name: "   "})
		require.Error(t, err)
		assert.True(t, auth.IsValidation(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTeams(t *testing.T) {
	svc, mock := newServiceTest(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, organization_id, name, description, created_at, updated_at`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name", "description", "created_at", "updated_at"}).
			AddRow(7, 1, "North", "desc", now, now).
			AddRow(8, 1, "South", nil, now, now))

	teams, err := svc.ListTeams(ctx, 1)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "North", teams[0].Name)
	assert.Empty(t, teams[1].Description)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTeam(t *testing.T) {
	svc, mock := newServiceTest(t)
	ctx := context.Background()

	t.Run("detaches members and properties", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE members SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`)).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM team_properties WHERE team_id = $1`)).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM teams WHERE id = $1`)).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.DeleteTeam(ctx, 7))
	})

	t.Run("unknown team rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE members SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`)).
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM team_properties WHERE team_id = $1`)).
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM teams WHERE id = $1`)).
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := svc.DeleteTeam(ctx, 99)
		require.Error(t, err)
		assert.True(t, auth.IsNotFound(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganization(t *testing.T) {
	svc, mock := newServiceTest(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, slug, agent_owner_id, status, created_at, updated_at`)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "agent_owner_id", "status", "created_at", "updated_at"}).
				AddRow(1, "Acme Realty", "acme", 100, "active", now, now))

		org, err := svc.GetOrganization(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(100), org.AgentOwnerID)
		assert.Equal(t, OrgStatusActive, org.Status)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, slug, agent_owner_id, status, created_at, updated_at`)).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "agent_owner_id", "status", "created_at", "updated_at"}))

		_, err := svc.GetOrganization(ctx, 99)
		require.Error(t, err)
		assert.True(t, auth.IsNotFound(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
