package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentgrid/rentgrid/pkg/auth"
	"github.com/rentgrid/rentgrid/pkg/observability"
)

// PostgresService implements Service backed by PostgreSQL
type PostgresService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPostgresService creates a new tenancy service
func NewPostgresService(db *sql.DB, logger *observability.Logger) *PostgresService {
	return &PostgresService{
		db:     db,
		logger: logger.WithField("component", "orgs"),
	}
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, slug, agent_owner_id, status, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org Organization
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.AgentOwnerID,
		&org.Status,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, auth.NewNotFoundError("organization", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// validRole guards role writes so only known roles reach the database
func validRole(role auth.Role) error {
	if !role.IsValid() {
		return auth.NewValidationError("invalid role: %s", role)
	}
	return nil
}
