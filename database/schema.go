package database

import "github.com/jmoiron/sqlx"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		discord_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		display_name TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		town TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'not_ready',
		wins INTEGER NOT NULL DEFAULT 0 CHECK (wins >= 0),
		losses INTEGER NOT NULL DEFAULT 0 CHECK (losses >= 0),
		created_at TIMESTAMP NOT NULL,
		last_active_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spiders (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		species TEXT NOT NULL,
		deadliness_score REAL NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL,
		image_size_bytes INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_in_fight TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		challenger_id TEXT NOT NULL REFERENCES users(id),
		challenger_spider_id TEXT NOT NULL REFERENCES spiders(id),
		challenged_id TEXT NOT NULL REFERENCES users(id),
		challenged_spider_id TEXT REFERENCES spiders(id),
		status TEXT NOT NULL DEFAULT 'pending',
		message TEXT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		accepted_at TIMESTAMP,
		declined_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenges_pending
		ON challenges(status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_challenges_pair
		ON challenges(challenger_id, challenged_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_challenges_one_pending
		ON challenges(challenger_id, challenged_id) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS fights (
		id TEXT PRIMARY KEY,
		challenge_id TEXT NOT NULL REFERENCES challenges(id),
		challenger_id TEXT NOT NULL,
		challenged_id TEXT NOT NULL,
		challenger_spider_id TEXT NOT NULL,
		challenged_spider_id TEXT NOT NULL,
		challenger_score REAL NOT NULL,
		challenged_score REAL NOT NULL,
		challenger_modifier REAL NOT NULL DEFAULT 0,
		challenged_modifier REAL NOT NULL DEFAULT 0,
		win_probability REAL NOT NULL,
		winner_id TEXT NOT NULL DEFAULT '',
		loser_id TEXT NOT NULL DEFAULT '',
		is_draw BOOLEAN NOT NULL DEFAULT FALSE,
		score_difference REAL NOT NULL,
		was_close_fight BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fights_users
		ON fights(challenger_id, challenged_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// EnsureSchema creates all tables and indexes if they don't exist yet.
func EnsureSchema(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
