package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentgrid/rentgrid/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in apply order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					agent_owner_id BIGINT NOT NULL REFERENCES users(id),
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
				CREATE INDEX idx_organizations_agent_owner_id ON organizations(agent_owner_id);
			`,
		},
		{
			Version:     3,
			Description: "Create teams table",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, name)
				);

				CREATE INDEX idx_teams_organization_id ON teams(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					team_id BIGINT REFERENCES teams(id) ON DELETE SET NULL,
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, organization_id)
				);

				CREATE INDEX idx_members_organization_id ON members(organization_id);
				CREATE INDEX idx_members_team_id ON members(team_id);
			`,
		},
		{
			Version:     5,
			Description: "Create properties and property-derived tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS properties (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					address TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_properties_organization_id ON properties(organization_id);

				CREATE TABLE IF NOT EXISTS units (
					id BIGSERIAL PRIMARY KEY,
					property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
					label VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_units_property_id ON units(property_id);

				CREATE TABLE IF NOT EXISTS leases (
					id BIGSERIAL PRIMARY KEY,
					property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
					unit_id BIGINT REFERENCES units(id) ON DELETE SET NULL,
					starts_at DATE NOT NULL,
					ends_at DATE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_leases_property_id ON leases(property_id);

				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS lease_tenants (
					lease_id BIGINT NOT NULL REFERENCES leases(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					PRIMARY KEY (lease_id, tenant_id)
				);

				CREATE INDEX idx_lease_tenants_tenant_id ON lease_tenants(tenant_id);

				CREATE TABLE IF NOT EXISTS maintenance_requests (
					id BIGSERIAL PRIMARY KEY,
					property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
					unit_id BIGINT REFERENCES units(id) ON DELETE SET NULL,
					summary TEXT NOT NULL,
					status VARCHAR(50) NOT NULL DEFAULT 'open',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_maintenance_requests_property_id ON maintenance_requests(property_id);
			`,
		},
		{
			Version:     6,
			Description: "Create team_properties table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_properties (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					property_id BIGINT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (team_id, property_id)
				);

				CREATE INDEX idx_team_properties_property_id ON team_properties(property_id);
			`,
		},
		{
			Version:     7,
			Description: "Create resource_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					resource_type VARCHAR(50) NOT NULL,
					resource_id BIGINT NOT NULL,
					action VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (team_id, resource_type, resource_id, action)
				);
			`,
		},
		{
			Version:     8,
			Description: "Create sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					token VARCHAR(255) PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE SET NULL,
					team_id BIGINT REFERENCES teams(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					last_seen_at TIMESTAMP
				);

				CREATE INDEX idx_sessions_user_id ON sessions(user_id);
				CREATE INDEX idx_sessions_expires_at ON sessions(expires_at);
			`,
		},
	}
}

// RunMigrations applies pending migrations in version order, each in its own
// transaction, tracking applied versions in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migrations: %w", err)
	}

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
