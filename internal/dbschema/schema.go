// Package dbschema holds the Postgres schema shared by the backend and the
// seeder.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates every table idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	uuid          UUID PRIMARY KEY,
	email         TEXT UNIQUE NOT NULL,
	username      TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	intro_short   TEXT NOT NULL DEFAULT '',
	intro_long    TEXT NOT NULL DEFAULT '',
	research_area TEXT NOT NULL DEFAULT '',
	gender        TEXT NOT NULL DEFAULT '',
	coin          INTEGER NOT NULL DEFAULT 0,
	is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
	tags          TEXT[] NOT NULL DEFAULT '{}',
	match_status  TEXT NOT NULL DEFAULT 'available',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS users_match_status_idx ON users (match_status);

CREATE TABLE IF NOT EXISTS email_codes (
	email      TEXT PRIMARY KEY,
	code_hash  TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS match_results (
	id          BIGSERIAL PRIMARY KEY,
	user_uuid   UUID NOT NULL REFERENCES users (uuid) ON DELETE CASCADE,
	match_uuid  UUID NOT NULL REFERENCES users (uuid) ON DELETE CASCADE,
	match_round CHAR(8) NOT NULL,
	match_score INTEGER NOT NULL,
	llm_comment TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_uuid, match_round)
);
`

// Apply runs Schema.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
