package authz

import (
	"context"
	"io"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

func newAssignmentStoreTest(t *testing.T) (*AssignmentStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewAssignmentStore(db, logger), mock
}

func TestAssignmentStoreIsAssigned(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM team_properties WHERE team_id = $1 AND property_id = $2)`)

	mock.ExpectQuery(query).WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	assigned, err := store.IsAssigned(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, assigned)

	mock.ExpectQuery(query).WithArgs(int64(7), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	assigned, err = store.IsAssigned(ctx, 7, 2)
	require.NoError(t, err)
	assert.False(t, assigned)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStorePropertyIDsForTeam(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT property_id FROM team_properties WHERE team_id = $1 ORDER BY property_id`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"property_id"}).AddRow(1).AddRow(3).AddRow(9))

	ids, err := store.PropertyIDsForTeam(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 9}, ids)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStoreAssignDiff(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	// Current set {1, 2}, desired {2, 3}: adds 3, removes 1.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT organization_id FROM teams WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM properties WHERE id = ANY($1) AND organization_id = $2`)).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT property_id FROM team_properties WHERE team_id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"property_id"}).AddRow(1).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO team_properties (team_id, property_id, created_at) VALUES ($1, $2, NOW())`)).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM team_properties WHERE team_id = $1 AND property_id = $2`)).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	added, removed, err := store.Assign(ctx, 7, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStoreAssignUnchangedSetIsNoOp(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	// Desired set equals the current set: no inserts, no deletes.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT organization_id FROM teams WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM properties WHERE id = ANY($1) AND organization_id = $2`)).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT property_id FROM team_properties WHERE team_id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"property_id"}).AddRow(2).AddRow(3))
	mock.ExpectCommit()

	added, removed, err := store.Assign(ctx, 7, []int64{2, 3})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStoreAssignEmptyClearsAll(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT organization_id FROM teams WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT property_id FROM team_properties WHERE team_id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"property_id"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM team_properties WHERE team_id = $1 AND property_id = $2`)).
		WithArgs(int64(7), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	added, removed, err := store.Assign(ctx, 7, nil)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 1, removed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStoreAssignRejectsForeignProperties(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT organization_id FROM teams WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM properties WHERE id = ANY($1) AND organization_id = $2`)).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, _, err := store.Assign(ctx, 7, []int64{2, 99})
	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentStoreAssignUnknownTeam(t *testing.T) {
	store, mock := newAssignmentStoreTest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT organization_id FROM teams WHERE id = $1`)).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))
	mock.ExpectRollback()

	_, _, err := store.Assign(ctx, 404, []int64{1})
	require.Error(t, err)
	assert.True(t, auth.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}
