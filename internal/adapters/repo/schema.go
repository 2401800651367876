package repo

import (
	"context"
	"fmt"
)

// EnsureSchema применяет идемпотентный DDL при старте сервиса.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			subject TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'free',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS content_profiles (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			industry TEXT NOT NULL DEFAULT '',
			audience TEXT NOT NULL DEFAULT '',
			archetype TEXT NOT NULL DEFAULT '',
			tone_formal INT NOT NULL DEFAULT 50,
			tone_emotional INT NOT NULL DEFAULT 50,
			tone_bold INT NOT NULL DEFAULT 50,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			current_step INT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			snapshot JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			hook TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			cta TEXT NOT NULL DEFAULT '',
			structure TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			score JSONB,
			feedback TEXT,
			status TEXT NOT NULL DEFAULT 'in_progress',
			transcript JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS posts_user_created_idx ON posts (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS monthly_usage (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			month DATE NOT NULL,
			posts_used INT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, month)
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("применение схемы: %w", err)
		}
	}
	return nil
}
