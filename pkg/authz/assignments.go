package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

// AssignmentStore manages which properties a team is scoped to. The team's
// property set is the unit of change: Assign replaces the whole set in one
// transaction so concurrent readers never observe a half-updated team.
type AssignmentStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAssignmentStore creates a team assignment store
func NewAssignmentStore(db *sql.DB, logger *observability.Logger) *AssignmentStore {
	return &AssignmentStore{
		db:     db,
		logger: logger.WithField("component", "assignments"),
	}
}

// IsAssigned reports whether the team is assigned to the property
func (s *AssignmentStore) IsAssigned(ctx context.Context, teamID, propertyID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM team_properties WHERE team_id = $1 AND property_id = $2)`

	var assigned bool
	if err := s.db.QueryRowContext(ctx, query, teamID, propertyID).Scan(&assigned); err != nil {
		return false, fmt.Errorf("failed to check team assignment: %w", err)
	}
	return assigned, nil
}

// PropertyIDsForTeam returns the property ids assigned to a team
func (s *AssignmentStore) PropertyIDsForTeam(ctx context.Context, teamID int64) ([]int64, error) {
	query := `SELECT property_id FROM team_properties WHERE team_id = $1 ORDER BY property_id`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team properties: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team properties: %w", err)
	}

	return ids, nil
}

// Assign replaces the team's property set with propertyIDs. The diff against
// the current set is computed and applied inside one transaction; the counts
// of added and removed links are returned. Every property must belong to the
// team's organization or the whole call fails with a ValidationError and no
// state changes.
func (s *AssignmentStore) Assign(ctx context.Context, teamID int64, propertyIDs []int64) (added, removed int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orgID int64
	err = tx.QueryRowContext(ctx, `SELECT organization_id FROM teams WHERE id = $1`, teamID).Scan(&orgID)
	if err == sql.ErrNoRows {
		return 0, 0, auth.NewNotFoundError("team", fmt.Sprintf("%d", teamID))
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get team organization: %w", err)
	}

	desired := make(map[int64]bool, len(propertyIDs))
	for _, id := range propertyIDs {
		desired[id] = true
	}

	if len(propertyIDs) > 0 {
		if err := validateProperties(ctx, tx, orgID, propertyIDs); err != nil {
			return 0, 0, err
		}
	}

	current := make(map[int64]bool)
	rows, err := tx.QueryContext(ctx, `SELECT property_id FROM team_properties WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list current assignments: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan assignment: %w", err)
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	for id := range desired {
		if !current[id] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO team_properties (team_id, property_id, created_at) VALUES ($1, $2, NOW())`,
				teamID, id); err != nil {
				return 0, 0, fmt.Errorf("failed to add assignment: %w", err)
			}
			added++
		}
	}

	for id := range current {
		if !desired[id] {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM team_properties WHERE team_id = $1 AND property_id = $2`,
				teamID, id); err != nil {
				return 0, 0, fmt.Errorf("failed to remove assignment: %w", err)
			}
			removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"team_id": teamID,
		"added":   added,
		"removed": removed,
	}).Info("team property assignments replaced")

	return added, removed, nil
}

// validateProperties checks that every property exists and belongs to orgID
func validateProperties(ctx context.Context, tx *sql.Tx, orgID int64, propertyIDs []int64) error {
	query := `SELECT COUNT(*) FROM properties WHERE id = ANY($1) AND organization_id = $2`

	var count int
	if err := tx.QueryRowContext(ctx, query, pq.Array(propertyIDs), orgID).Scan(&count); err != nil {
		return fmt.Errorf("failed to validate properties: %w", err)
	}

	unique := make(map[int64]bool, len(propertyIDs))
	for _, id := range propertyIDs {
		unique[id] = true
	}
	if count != len(unique) {
		return auth.NewValidationError("one or more properties do not belong to organization %d", orgID)
	}
	return nil
}
