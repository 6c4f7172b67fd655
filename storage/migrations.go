package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the full checkpg schema. Statements are idempotent so Migrate
// can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpg_check_requests (
		id UUID PRIMARY KEY,
		state TEXT NOT NULL,
		user_id TEXT NOT NULL,
		engagement_name TEXT NOT NULL,
		policy_name TEXT NOT NULL,
		policy_version TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		claimed_by TEXT,
		claimed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpg_check_requests_claim
		ON checkpg_check_requests (state, created_at)`,

	`CREATE TABLE IF NOT EXISTS checkpg_audit_logs (
		id UUID PRIMARY KEY,
		document_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpg_audit_logs_key
		ON checkpg_audit_logs (document_type, user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS checkpg_documents (
		id UUID PRIMARY KEY,
		container TEXT NOT NULL,
		name TEXT NOT NULL,
		version_id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		data BYTEA NOT NULL,
		size BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (container, name, version_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpg_documents_latest
		ON checkpg_documents (container, name, created_at DESC)`,
}

// Migrate creates the checkpg schema if it does not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
