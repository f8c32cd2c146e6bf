package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed schema
var schemaFS embed.FS

const migrationTable = "schema_migrations"

// Migrate applies the embedded schema files for the dialect, each at most
// once, recording applied files in schema_migrations.  Files are applied in
// lexical order.
func Migrate(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("sql db is required")
	}
	root := "schema/" + string(db.Dialect)
	entries, err := fs.ReadDir(schemaFS, root)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name VARCHAR(255) PRIMARY KEY, applied_at BIGINT NOT NULL)`, migrationTable)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		content, err := fs.ReadFile(schemaFS, root+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if db.Dialect == MySQL {
			err = applyMySQL(ctx, db, name, string(content))
		} else {
			err = applyTx(ctx, db, name, string(content))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// migrationLockKey serializes concurrent Postgres migrators through an
// advisory lock held for the transaction.
const migrationLockKey = 7_310_442_019

// applyTx runs one file and its record insert in a single transaction.
// Postgres and SQLite both roll DDL back, so a failed file leaves nothing
// behind and a second migrator either waits or sees the record.
func applyTx(ctx context.Context, db *DB, name, content string) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if db.Dialect == Postgres {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
	}
	applied, err := isApplied(ctx, tx, db.Dialect, name)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if applied {
		return tx.Commit()
	}
	for _, stmt := range splitStatements(content) {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	if err = recordApplied(ctx, tx, db.Dialect, name); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// applyMySQL runs one file statement by statement.  MySQL commits DDL
// implicitly, so there is no transaction to join; the schema files are
// written to be re-runnable and the record insert ignores a row another
// migrator wrote first.
func applyMySQL(ctx context.Context, db *DB, name, content string) error {
	applied, err := isApplied(ctx, db, db.Dialect, name)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if applied {
		return nil
	}
	// MySQL rejects multi statement Exec unless the DSN opts in, so
	// statements are run one at a time.
	for _, stmt := range splitStatements(content) {
		if _, err := db.ExecContext(ctx, stmt); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return recordApplied(ctx, db, db.Dialect, name)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isApplied(ctx context.Context, q execQuerier, d Dialect, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		d.Rebind(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`), name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// recordApplied marks name as applied.  Recording an already recorded
// file is not an error.
func recordApplied(ctx context.Context, q execQuerier, d Dialect, name string) error {
	var stmt string
	switch d {
	case MySQL:
		stmt = `INSERT IGNORE INTO ` + migrationTable + ` (name, applied_at) VALUES (?, ?)`
	default:
		stmt = `INSERT INTO ` + migrationTable + ` (name, applied_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`
	}
	if _, err := q.ExecContext(ctx, d.Rebind(stmt), name, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func splitStatements(content string) []string {
	var out []string
	for _, part := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key name")
}
