package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// buildDatabaseURL constructs the database URL from environment variables.
// It returns "" when no database has been configured for tests.
func buildDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "circuit_designer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool *pgxpool.Pool
	ctx  context.Context
}

// NewTestDatabase connects to the configured test database, skipping the
// test when none is configured or the knowledge tables are missing.
func NewTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	url := buildDatabaseURL()
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := GetTestDatabasePool(ctx, url)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	var present bool
	err = pool.QueryRow(ctx, `
		SELECT to_regclass('public.regulations') IS NOT NULL
		   AND to_regclass('public.design_knowledge') IS NOT NULL
	`).Scan(&present)
	if err != nil || !present {
		pool.Close()
		t.Skip("knowledge tables not migrated, skipping integration test")
	}

	db := &TestDatabase{Pool: pool, ctx: ctx}
	t.Cleanup(db.Close)
	return db
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// SeedRegulation inserts a regulation passage and removes it when the test ends
func (db *TestDatabase) SeedRegulation(t *testing.T, r Regulation) {
	t.Helper()
	_, err := db.Pool.Exec(db.ctx, `
		INSERT INTO regulations (id, section, content)
		VALUES ($1, $2, $3)
	`, r.ID, r.Section, r.Content)
	if err != nil {
		t.Fatalf("Failed to seed regulation %s: %v", r.ID, err)
	}
	t.Cleanup(func() {
		if _, err := db.Pool.Exec(db.ctx, `DELETE FROM regulations WHERE id = $1`, r.ID); err != nil {
			t.Logf("Warning: Failed to remove regulation %s: %v", r.ID, err)
		}
	})
}

// SeedDesignDoc inserts a design-knowledge passage and removes it when the test ends
func (db *TestDatabase) SeedDesignDoc(t *testing.T, d DesignDoc) {
	t.Helper()
	_, err := db.Pool.Exec(db.ctx, `
		INSERT INTO design_knowledge (id, topic, content)
		VALUES ($1, $2, $3)
	`, d.ID, d.Topic, d.Content)
	if err != nil {
		t.Fatalf("Failed to seed design doc %s: %v", d.ID, err)
	}
	t.Cleanup(func() {
		if _, err := db.Pool.Exec(db.ctx, `DELETE FROM design_knowledge WHERE id = $1`, d.ID); err != nil {
			t.Logf("Warning: Failed to remove design doc %s: %v", d.ID, err)
		}
	})
}
