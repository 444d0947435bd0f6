package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the DDL for the discussion engine's own tables. users and
// subjects are boundary tables owned by external CRUD modules; they are
// created here too so a fresh database is usable without those modules.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS subjects (
		id         BIGSERIAL PRIMARY KEY,
		kind       TEXT NOT NULL CHECK (kind IN ('media', 'script')),
		title      TEXT NOT NULL,
		owner_id   BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS thread_nodes (
		id              BIGSERIAL PRIMARY KEY,
		kind            TEXT NOT NULL CHECK (kind IN ('comment', 'feedback')),
		subject_id      BIGINT NOT NULL,
		author_id       BIGINT NOT NULL REFERENCES users(id),
		parent_id       BIGINT REFERENCES thread_nodes(id) ON DELETE SET NULL,
		text_body       TEXT NOT NULL,
		position_marker DOUBLE PRECISION,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_thread_nodes_subject
		ON thread_nodes (subject_id, parent_id)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id              BIGSERIAL PRIMARY KEY,
		recipient_id    BIGINT NOT NULL REFERENCES users(id),
		triggered_by_id BIGINT NOT NULL REFERENCES users(id),
		subject_id      BIGINT NOT NULL,
		node_id         BIGINT REFERENCES thread_nodes(id) ON DELETE CASCADE,
		kind            TEXT NOT NULL CHECK (kind IN ('reply', 'subject_activity')),
		message         TEXT NOT NULL,
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (recipient_id <> triggered_by_id)
	)`,

	// At most one notification per (recipient, node) per fan-out event;
	// retried fan-outs hit ON CONFLICT instead of double-inserting.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_recipient_node
		ON notifications (recipient_id, node_id)
		WHERE node_id IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread
		ON notifications (recipient_id, is_read)`,
}

// EnsureSchema creates the engine's tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
