package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB initializes the database connection pool using the DATABASE_URL environment variable
func InitDB(ctx context.Context) error {
	var err error
	once.Do(func() {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			err = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}

		config, parseErr := pgxpool.ParseConfig(dbURL)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", parseErr)
			return
		}

		pool, err = pgxpool.NewWithConfig(ctx, config)
	})
	return err
}

// GetPool returns the database connection pool
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the database connection pool
func Close() {
	if pool != nil {
		pool.Close()
	}
}

// EnsureSchema creates the matching tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS matching_sessions (
			session_id   TEXT PRIMARY KEY,
			created_at   TIMESTAMPTZ NOT NULL,
			section_type TEXT,
			stats        JSONB NOT NULL,
			summary      JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS matching_results (
			id           BIGSERIAL PRIMARY KEY,
			session_id   TEXT NOT NULL REFERENCES matching_sessions(session_id) ON DELETE CASCADE,
			term_key     TEXT NOT NULL,
			match_type   TEXT NOT NULL,
			confidence   DOUBLE PRECISION NOT NULL,
			line_number  INT NOT NULL,
			payload      JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_matching_results_session
			ON matching_results (session_id, line_number);
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
