// Package dbtest provides a PostgreSQL pool for integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kneutral-org/articlelock/internal/database"
)

// EnvVar names the connection string used by integration tests.
const EnvVar = "TEST_DATABASE_URL"

// NewPool returns a migrated pool with empty tables.
// Skips the test if TEST_DATABASE_URL is unset or the database is unreachable.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(EnvVar)
	if url == "" {
		t.Skipf("%s not set", EnvVar)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, url)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	truncate(t, pool)

	t.Cleanup(func() {
		truncate(t, pool)
		pool.Close()
	})

	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE article_locks, article_favorites, article_co_authors, articles, user_follows, users
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
