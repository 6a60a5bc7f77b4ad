package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rentgrid/rentgrid/pkg/auth"
)

// CreateTeam creates a team within an organization and fills in the
// generated ID and timestamps.
func (s *PostgresService) CreateTeam(ctx context.Context, team *Team) error {
	if strings.TrimSpace(team.Name) == "" {
		return auth.NewValidationError("team name is required")
	}

	query := `
		INSERT INTO teams (organization_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query, team.OrganizationID, team.Name, team.Description).Scan(
		&team.ID,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": team.OrganizationID,
		"team_id":         team.ID,
		"name":            team.Name,
	}).Info("team created")

	return nil
}

// GetTeam retrieves a team by ID
func (s *PostgresService) GetTeam(ctx context.Context, id int64) (*Team, error) {
	query := `
		SELECT id, organization_id, name, description, created_at, updated_at
		FROM teams
		WHERE id = $1
	`

	var team Team
	var description sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&team.ID,
		&team.OrganizationID,
		&team.Name,
		&description,
		&team.CreatedAt,
		&team.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, auth.NewNotFoundError("team", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	if description.Valid {
		team.Description = description.String
	}

	return &team, nil
}

// ListTeams lists all teams in an organization
func (s *PostgresService) ListTeams(ctx context.Context, organizationID int64) ([]*Team, error) {
	query := `
		SELECT id, organization_id, name, description, created_at, updated_at
		FROM teams
		WHERE organization_id = $1
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		var team Team
		var description sql.NullString

		if err := rows.Scan(
			&team.ID,
			&team.OrganizationID,
			&team.Name,
			&description,
			&team.CreatedAt,
			&team.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}

		if description.Valid {
			team.Description = description.String
		}
		teams = append(teams, &team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}

	return teams, nil
}

// UpdateTeam updates a team's name and description
func (s *PostgresService) UpdateTeam(ctx context.Context, team *Team) error {
	if strings.TrimSpace(team.Name) == "" {
		return auth.NewValidationError("team name is required")
	}

	query := `
		UPDATE teams SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, team.Name, team.Description, team.ID)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return auth.NewNotFoundError("team", fmt.Sprintf("%d", team.ID))
	}

	return nil
}

// DeleteTeam deletes a team. Members of the team fall back to the teamless
// state and property links are removed in the same transaction.
func (s *PostgresService) DeleteTeam(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE members SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach members: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_properties WHERE team_id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove team properties: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return auth.NewNotFoundError("team", fmt.Sprintf("%d", id))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithField("team_id", id).Info("team deleted")

	return nil
}
