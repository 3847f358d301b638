package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPG(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres migration test")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cleanDatabase(t, context.Background(), db)
	return db
}

// TestRunMigrations tests that migrations can be applied to an empty database
func TestRunMigrations(t *testing.T) {
	db := openPG(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	for _, table := range []string{messagesTable, contactsTable} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s does not exist after migration", table)
		}
	}

	version, dirty, err := GetMigrationVersion(db)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty || version < 1 {
		t.Errorf("version = %d dirty = %v", version, dirty)
	}

	// second run is a no-op
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
}

func TestMigrationDown(t *testing.T) {
	db := openPG(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	var exists bool
	if err := db.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, messagesTable).Scan(&exists); err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("whatsapp_messages still exists after rollback")
	}
}

// TestPostgresStoreRoundTrip runs the store against real Postgres, where the
// upsert statements must behave the same as on SQLite.
func TestPostgresStoreRoundTrip(t *testing.T) {
	db := openPG(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewStore(db)
	m := Message{ID: "pg-1", From: "1555", To: "1999", Body: "hi", Type: "text", Timestamp: unix(1000)}
	for i := 0; i < 2; i++ {
		if err := s.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	page, err := s.ListMessages(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 1 {
		t.Fatalf("total = %d", page.Pagination.Total)
	}
}

// cleanDatabase drops the owned tables and the schema_migrations table to start fresh
func cleanDatabase(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS whatsapp_messages CASCADE`,
		`DROP TABLE IF EXISTS whatsapp_contacts CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("clean database: %v", err)
		}
	}
}
