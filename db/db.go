// Package db provides database connection helpers, schema migration, and the
// persistence gateway for messages and contacts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-Go sqlite driver registered as 'sqlite'
)

// sqlitePrefix selects the embedded SQLite driver for local runs without Postgres.
const sqlitePrefix = "sqlite:"

// Config describes the connection pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a bounded connection pool. DSNs prefixed with "sqlite:" use
// the embedded SQLite driver, everything else goes to Postgres via pgx.
func Connect(cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		//nolint:gosec // G101: Default DSN for local development in Docker Compose, not production credentials
		dsn = "postgres://wa:wa@postgres:5432/wa?sslmode=disable"
	}
	driver := "pgx"
	if strings.HasPrefix(dsn, sqlitePrefix) {
		driver = "sqlite"
		dsn = strings.TrimPrefix(dsn, sqlitePrefix)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// IsSQLite reports whether dsn selects the embedded SQLite driver.
func IsSQLite(dsn string) bool { return strings.HasPrefix(dsn, sqlitePrefix) }

// Migrate applies idempotent schema changes for all required tables and indices.
// The statements are valid on both Postgres and SQLite.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS whatsapp_messages (
			message_id TEXT PRIMARY KEY,
			from_number TEXT NOT NULL,
			to_number TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT 'text',
			timestamp TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'delivered',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS whatsapp_contacts (
			contact_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			number TEXT NOT NULL,
			is_business BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_messages_timestamp ON whatsapp_messages(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_messages_from ON whatsapp_messages(from_number)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_contacts_name_number ON whatsapp_contacts(name, number)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
