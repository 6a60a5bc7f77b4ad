package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// Store handles user and session persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, name, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`

	var user User
	var name sql.NullString
	var lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&name,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("user", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if name.Valid {
		user.Name = name.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}

// ResolveSession resolves a session token to its session record. Unknown and
// expired tokens both return NotFoundError; the caller decides whether that
// degrades to an anonymous context or fails the request.
func (s *Store) ResolveSession(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT token, user_id, organization_id, team_id, created_at, expires_at, last_seen_at
		FROM sessions
		WHERE token = $1 AND expires_at > NOW()
	`

	var session Session
	var orgID, teamID sql.NullInt64
	var lastSeen sql.NullTime

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&orgID,
		&teamID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&lastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("session", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	if orgID.Valid {
		id := orgID.Int64
		session.OrganizationID = &id
	}
	if teamID.Valid {
		id := teamID.Int64
		session.TeamID = &id
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		session.LastSeenAt = &t
	}

	return &session, nil
}

// TouchSession records session activity for idle-session reporting
func (s *Store) TouchSession(ctx context.Context, token string) error {
	query := `UPDATE sessions SET last_seen_at = NOW() WHERE token = $1`
	_, err := s.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns the
// number of rows removed. Run periodically from the cleanup job.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
