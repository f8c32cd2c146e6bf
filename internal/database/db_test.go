package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func openTempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{Dialect: SQLite, Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	db := openTempDB(t)
	ctx := context.Background()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied migrations = %d, want 1", n)
	}
	for _, table := range []string{"registration_references", "events", "family_links"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateConcurrentlyRecordsOnce(t *testing.T) {
	t.Parallel()
	db := openTempDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- Migrate(ctx, db)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied migrations = %d, want 1", n)
	}
}

func TestRecordAppliedToleratesExistingRow(t *testing.T) {
	t.Parallel()
	db := openTempDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// another migrator recorded the file between our check and our insert
	if err := recordApplied(ctx, db, db.Dialect, "0001_registration_ledger.sql"); err != nil {
		t.Fatalf("record again: %v", err)
	}
}

func TestLiveKeyAllowsManyNulls(t *testing.T) {
	t.Parallel()
	db := openTempDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	insert := `INSERT INTO registration_references
		(id, owner_id, registrant_id, event_id, scope, occurrence_key, intent, composite_key, live_key, created_at, cancelled_at)
		VALUES (?, 'u1', 'u1', 'e1', 'series', '', 'rsvp', 'k', NULL, 1, 2)`
	for _, id := range []string{"r1", "r2"} {
		if _, err := db.ExecContext(ctx, insert, id); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT id FROM t WHERE a = ? AND b IN (?,?)`
	if got := MySQL.Rebind(q); got != q {
		t.Fatalf("mysql rebind changed query: %s", got)
	}
	want := `SELECT id FROM t WHERE a = $1 AND b IN ($2,$3)`
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("postgres rebind = %s, want %s", got, want)
	}
}

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"mysql":      MySQL,
		" Postgres ": Postgres,
		"pgx":        Postgres,
		"sqlite":     SQLite,
	}
	for raw, want := range tests {
		got, err := ParseDialect(raw)
		if err != nil {
			t.Fatalf("ParseDialect(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseDialect(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := Placeholders(3); got != "?,?,?" {
		t.Fatalf("Placeholders(3) = %q", got)
	}
	if got := Placeholders(0); got != "" {
		t.Fatalf("Placeholders(0) = %q", got)
	}
}
