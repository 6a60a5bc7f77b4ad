package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentgrid/rentgrid/pkg/auth"
)

// GetMember retrieves a user's membership in an organization
func (s *PostgresService) GetMember(ctx context.Context, userID, organizationID int64) (*Member, error) {
	query := `
		SELECT id, user_id, organization_id, role, team_id, status, created_at, updated_at
		FROM members
		WHERE user_id = $1 AND organization_id = $2
	`

	var member Member
	var teamID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID, organizationID).Scan(
		&member.ID,
		&member.UserID,
		&member.OrganizationID,
		&member.Role,
		&teamID,
		&member.Status,
		&member.CreatedAt,
		&member.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, auth.NewNotFoundError("member", fmt.Sprintf("%d", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if teamID.Valid {
		id := teamID.Int64
		member.TeamID = &id
	}

	return &member, nil
}

// ListMembers lists all members of an organization
func (s *PostgresService) ListMembers(ctx context.Context, organizationID int64) ([]*Member, error) {
	query := `
		SELECT id, user_id, organization_id, role, team_id, status, created_at, updated_at
		FROM members
		WHERE organization_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var member Member
		var teamID sql.NullInt64

		if err := rows.Scan(
			&member.ID,
			&member.UserID,
			&member.OrganizationID,
			&member.Role,
			&teamID,
			&member.Status,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}

		if teamID.Valid {
			id := teamID.Int64
			member.TeamID = &id
		}
		members = append(members, &member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// AddMember adds a user to an organization with the given role. Adding an
// existing member is a conflict, not an upsert.
func (s *PostgresService) AddMember(ctx context.Context, organizationID, userID int64, role auth.Role) (*Member, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO members (user_id, organization_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, user_id, organization_id, role, status, created_at, updated_at
	`

	var member Member
	err := s.db.QueryRowContext(ctx, query, userID, organizationID, role, MemberStatusActive).Scan(
		&member.ID,
		&member.UserID,
		&member.OrganizationID,
		&member.Role,
		&member.Status,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": organizationID,
		"user_id":         userID,
		"role":            role,
	}).Info("member added")

	return &member, nil
}

// UpdateMemberRole changes a member's role
func (s *PostgresService) UpdateMemberRole(ctx context.Context, organizationID, userID int64, role auth.Role) error {
	if err := validRole(role); err != nil {
		return err
	}

	query := `
		UPDATE members SET role = $1, updated_at = NOW()
		WHERE user_id = $2 AND organization_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, role, userID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return auth.NewNotFoundError("member", fmt.Sprintf("%d", userID))
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": organizationID,
		"user_id":         userID,
		"role":            role,
	}).Info("member role updated")

	return nil
}

// UpdateMemberTeam moves a member onto a team, or off all teams with a nil
// teamID. A non-nil team must belong to the same organization.
func (s *PostgresService) UpdateMemberTeam(ctx context.Context, organizationID, userID int64, teamID *int64) error {
	if teamID != nil {
		team, err := s.GetTeam(ctx, *teamID)
		if err != nil {
			return err
		}
		if team.OrganizationID != organizationID {
			return auth.NewValidationError("team %d does not belong to organization %d", *teamID, organizationID)
		}
	}

	query := `
		UPDATE members SET team_id = $1, updated_at = NOW()
		WHERE user_id = $2 AND organization_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, teamID, userID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to update member team: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return auth.NewNotFoundError("member", fmt.Sprintf("%d", userID))
	}

	return nil
}

// RemoveMember removes a user from an organization
func (s *PostgresService) RemoveMember(ctx context.Context, organizationID, userID int64) error {
	query := `DELETE FROM members WHERE user_id = $1 AND organization_id = $2`

	result, err := s.db.ExecContext(ctx, query, userID, organizationID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return auth.NewNotFoundError("member", fmt.Sprintf("%d", userID))
	}

	s.logger.WithFields(map[string]interface{}{
		"organization_id": organizationID,
		"user_id":         userID,
	}).Info("member removed")

	return nil
}
