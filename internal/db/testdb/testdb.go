// Package testdb provides databases for tests. By default every test gets
// its own in-memory SQLite database. When TEST_POSTGRES_DSN is set, every
// test gets its own schema in that PostgreSQL database instead.
package testdb

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/migrations"
)

// PostgresEnv holds a postgres:// URL for tests to run against.
const PostgresEnv = "TEST_POSTGRES_DSN"

const setupTimeout = 10 * time.Second

// RunWhile returns a provider for an empty database with the account schema
// applied. The database is removed when the test finishes.
func RunWhile(t *testing.T) *db.Provider {
	t.Helper()

	p := RunUnmigratedWhile(t)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	_, err := migrate.RunFS(ctx, p, migrations.FS, migrate.Metadata{AppVersion: "test"})
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return p
}

// RunUnmigratedWhile is RunWhile without the schema.
func RunUnmigratedWhile(t *testing.T) *db.Provider {
	t.Helper()

	if dsn := os.Getenv(PostgresEnv); dsn != "" {
		return runPostgres(t, dsn)
	}

	return open(t, db.DriverSQLite3, ":memory:")
}

func open(t *testing.T, driver db.Driver, dsn string) *db.Provider {
	t.Helper()

	p, err := db.NewProvider(driver, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return p
}

// runPostgres creates a fresh schema and returns a provider whose
// connections use it as search path.
func runPostgres(t *testing.T, dsn string) *db.Provider {
	t.Helper()

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("%s is not a valid URL: %v", PostgresEnv, err)
	}

	schema := "test_" + uuid.NewString()[:8]

	admin := open(t, db.DriverPostgres, dsn)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	_, err = admin.DB().ExecContext(ctx, `CREATE SCHEMA `+schema)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	// Registered before the provider below, so it runs after it was closed.
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		_, err := admin.DB().ExecContext(ctx, `DROP SCHEMA `+schema+` CASCADE`)
		if err != nil {
			t.Errorf("failed to drop schema %s: %v", schema, err)
		}
	})

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	return open(t, db.DriverPostgres, u.String())
}
