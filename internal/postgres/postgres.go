// Package postgres opens the shared connection pool and owns the schema.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            UUID PRIMARY KEY,
	source_ref    TEXT NOT NULL,
	speaker_count INTEGER NOT NULL DEFAULT 6,
	status        TEXT NOT NULL,
	result_ref    TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT check_status CHECK (status IN ('NEW', 'RUNNING', 'DONE', 'ERROR')),
	CONSTRAINT check_result CHECK ((status = 'DONE') = (result_ref IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS tasks_status_updated_idx ON tasks (status, updated_at);

CREATE TABLE IF NOT EXISTS dispatch_messages (
	id         BIGSERIAL PRIMARY KEY,
	channel    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	visible_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS dispatch_messages_visible_idx ON dispatch_messages (channel, visible_at);
`

// Migrate creates the tables used by the task store and the dispatch queue.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
