package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentgrid/rentgrid/pkg/observability"
)

// OverrideStore holds explicit per-resource permission grants keyed by
// (team, resource type, resource id, action). Presence of a row means
// granted. Grants are the finest-grained mechanism the engine consults and
// only matter when no team/property relationship settles the decision first.
type OverrideStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewOverrideStore creates a resource permission override store
func NewOverrideStore(db *sql.DB, logger *observability.Logger) *OverrideStore {
	return &OverrideStore{
		db:     db,
		logger: logger.WithField("component", "overrides"),
	}
}

// HasOverride reports whether an explicit grant exists for the tuple
func (s *OverrideStore) HasOverride(ctx context.Context, teamID int64, resourceType ResourceType, action Action, resourceID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM resource_permissions
			WHERE team_id = $1 AND resource_type = $2 AND resource_id = $3 AND action = $4
		)
	`

	var granted bool
	err := s.db.QueryRowContext(ctx, query, teamID, resourceType, resourceID, action).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("failed to check permission override: %w", err)
	}
	return granted, nil
}

// Grant records an explicit permission. Granting an existing permission is a
// no-op success.
func (s *OverrideStore) Grant(ctx context.Context, teamID int64, resourceType ResourceType, action Action, resourceID int64) error {
	query := `
		INSERT INTO resource_permissions (team_id, resource_type, resource_id, action, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (team_id, resource_type, resource_id, action) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, teamID, resourceType, resourceID, action); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"team_id":       teamID,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"action":        action,
	}).Info("resource permission granted")

	return nil
}

// Revoke removes an explicit permission. Revoking a permission that was
// never granted is a no-op success.
func (s *OverrideStore) Revoke(ctx context.Context, teamID int64, resourceType ResourceType, action Action, resourceID int64) error {
	query := `
		DELETE FROM resource_permissions
		WHERE team_id = $1 AND resource_type = $2 AND resource_id = $3 AND action = $4
	`

	if _, err := s.db.ExecContext(ctx, query, teamID, resourceType, resourceID, action); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"team_id":       teamID,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"action":        action,
	}).Info("resource permission revoked")

	return nil
}

// ListOverrides returns all grants for a team, for audit display
func (s *OverrideStore) ListOverrides(ctx context.Context, teamID int64) ([]Override, error) {
	query := `
		SELECT team_id, resource_type, resource_id, action, created_at
		FROM resource_permissions
		WHERE team_id = $1
		ORDER BY resource_type, resource_id, action
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.TeamID, &o.ResourceType, &o.ResourceID, &o.Action, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permission overrides: %w", err)
	}

	return overrides, nil
}
