package authz

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/rentgrid/rentgrid/pkg/observability"
)

// SkipIfNoDatabase skips tests that need a real Postgres instance. CI sets
// TEST_POSTGRES_PRIMARY; runs without it skip instead of failing.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_PRIMARY not set, skipping database test")
	}

	return dbURL
}

// SkipIfNoDatabaseOrShort additionally honors -short
func SkipIfNoDatabaseOrShort(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	return SkipIfNoDatabase(t)
}

// RequireDatabase opens the integration database and applies pending schema
// migrations so stores see the full schema. The connection is closed when the
// test finishes. Skips when no database is configured or reachable.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabaseOrShort(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("database not reachable: %v", err)
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	if err := RunMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}
