package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Migration is one versioned schema change.
type Migration struct {
	Version    string
	Statements []string
}

// Migrations returns the schema changes in the order they are applied.
func Migrations() []Migration {
	return []Migration{
		{
			Version: "0001_accounts",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					account_id TEXT PRIMARY KEY,
					email      TEXT NOT NULL UNIQUE,
					roles      TEXT[] NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE TABLE IF NOT EXISTS content_items (
					item_id    BIGSERIAL PRIMARY KEY,
					owner_id   TEXT NOT NULL REFERENCES accounts (account_id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE INDEX IF NOT EXISTS content_items_owner_idx ON content_items (owner_id)`,
			},
		},
		{
			Version: "0002_pending_requests",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS pending_requests (
					identity_id    TEXT NOT NULL REFERENCES accounts (account_id) ON DELETE CASCADE,
					identity_email TEXT NOT NULL,
					request_type   TEXT NOT NULL,
					data           TEXT NOT NULL DEFAULT '',
					token_hash     BYTEA NOT NULL,
					state          TEXT NOT NULL,
					created_at     TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (identity_id, request_type)
				)`,
				`CREATE INDEX IF NOT EXISTS pending_requests_created_idx ON pending_requests (created_at)`,
			},
		},
		{
			Version: "0003_request_records",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS request_records (
					record_id    TEXT PRIMARY KEY,
					identity_id  TEXT NOT NULL,
					email        TEXT NOT NULL,
					request_type TEXT NOT NULL,
					data         TEXT NOT NULL,
					confirmed_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS request_records_identity_idx ON request_records (identity_id, confirmed_at)`,
			},
		},
		{
			Version: "0004_deferred_records",
			Statements: []string{
				`ALTER TABLE request_records ADD COLUMN IF NOT EXISTS deferred BOOLEAN NOT NULL DEFAULT false`,
			},
		},
	}
}

// Migrate applies every migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, pool, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.Version, err)
		}
		logger.Info().Str("version", m.Version).Msg("applied migration")
	}
	return nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func apply(ctx context.Context, pool *pgxpool.Pool, m Migration) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
		return err
	})
}
