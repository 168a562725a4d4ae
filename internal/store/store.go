// Package store opens the Postgres database and applies schema
// migrations. All higher layers receive the *sql.DB it produces.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"scout/internal/logging"

	"go.uber.org/zap"
)

// Open connects to Postgres using the given DSN and verifies the
// connection. A missing or unreachable database is fatal for the caller.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Named("store").Info("database connected")
	return db, nil
}

// Migration is one named schema change. Statements run in order inside a
// single transaction; the name is recorded in schema_migrations.
type Migration struct {
	Name       string
	Statements []string
}

// migrations lists every schema change, oldest first. Never reorder or
// edit an applied entry; append a new one instead.
var migrations = []Migration{
	{
		Name: "001_create_entities",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS entities (
				id             TEXT PRIMARY KEY,
				type           TEXT NOT NULL,
				canonical_name TEXT NOT NULL,
				aliases        JSONB NOT NULL DEFAULT '[]',
				external_ids   JSONB NOT NULL DEFAULT '{}'
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS entities_name_type_uniq
				ON entities (type, lower(canonical_name))`,
		},
	},
	{
		Name: "002_create_facts",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS facts (
				id          TEXT PRIMARY KEY,
				entity_id   TEXT NOT NULL REFERENCES entities(id),
				name        TEXT NOT NULL,
				value       JSONB,
				dtype       TEXT NOT NULL,
				confidence  DOUBLE PRECISION,
				sources     JSONB NOT NULL DEFAULT '[]',
				notes       TEXT,
				observed_at TIMESTAMPTZ NOT NULL,
				valid_from  TIMESTAMPTZ NOT NULL,
				valid_to    TIMESTAMPTZ
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS facts_current_uniq
				ON facts (entity_id, name) WHERE valid_to IS NULL`,
			`CREATE INDEX IF NOT EXISTS facts_entity_idx ON facts (entity_id)`,
		},
	},
	{
		Name: "003_create_user_memory",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS user_memory (
				id         TEXT PRIMARY KEY,
				username   TEXT NOT NULL,
				text       TEXT NOT NULL,
				tags       JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (username, text)
			)`,
			`CREATE INDEX IF NOT EXISTS user_memory_username_idx ON user_memory (username)`,
		},
	},
	{
		Name: "004_trigram_entities",
		Statements: []string{
			// pg_trgm is optional; entity search falls back to ILIKE when
			// this migration is skipped.
			`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
			`CREATE INDEX IF NOT EXISTS entities_name_trgm_idx
				ON entities USING gin (canonical_name gin_trgm_ops)`,
		},
	},
}

// Migrate applies all pending migrations. The optional trigram migration
// is allowed to fail (insufficient privileges, missing extension); every
// other failure aborts.
func Migrate(ctx context.Context, db *sql.DB) error {
	log := logging.Named("store")

	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		migration_name TEXT PRIMARY KEY,
		executed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE migration_name = $1)`,
			m.Name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			if m.Name == "004_trigram_entities" {
				log.Warn("trigram migration skipped; entity search falls back to substring match",
					zap.Error(err))
				continue
			}
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		log.Info("migration applied", zap.String("name", m.Name))
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (migration_name) VALUES ($1)`, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// HasTrigram reports whether the pg_trgm similarity function is usable.
func HasTrigram(ctx context.Context, db *sql.DB) bool {
	var ok float64
	err := db.QueryRowContext(ctx, `SELECT similarity('scout', 'scout')`).Scan(&ok)
	return err == nil
}
