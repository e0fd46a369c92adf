package repository

import (
	"context"
	"database/sql"
	"log/slog"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT '',
		default_platforms TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content JSONB NOT NULL,
		media JSONB NOT NULL DEFAULT '[]',
		target_platforms TEXT[] NOT NULL DEFAULT '{}',
		scheduled_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		publish_results JSONB NOT NULL DEFAULT '{}',
		retry_count INTEGER NOT NULL DEFAULT 0,
		dispatch_task_id TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS posts_user_created_idx ON posts (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_status_scheduled_idx ON posts (status, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS posts_status_updated_idx ON posts (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		storage_path TEXT NOT NULL,
		type TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		original_name TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		used_in_posts TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS media_user_idx ON media (user_id, uploaded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS social_accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_account_id TEXT NOT NULL,
		account_name TEXT NOT NULL DEFAULT '',
		profile_pic_url TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expires_at TIMESTAMPTZ,
		scopes TEXT[],
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		connected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_used_at TIMESTAMPTZ,
		UNIQUE (user_id, platform, platform_account_id)
	)`,
}

// EnsureSchema creates the tables and indexes this service reads and writes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			slog.Error("applying schema", "error", err)
			return err
		}
	}
	return nil
}
