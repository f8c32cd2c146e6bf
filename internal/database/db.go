package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect validates a DB_DRIVER value.
func ParseDialect(raw string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(raw))); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	case "pgx", "postgresql":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported db driver %q", raw)
}

// Options describes how to reach the database.  Path is used by SQLite
// only; the network fields are used by MySQL and Postgres.
type Options struct {
	Dialect Dialect
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	Path    string
}

// DB bundles the pool with the dialect it speaks so repositories can adapt
// placeholders and error classification.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured backend and verifies the connection.
func Open(opts Options) (*DB, error) {
	driver, dsn, err := dataSource(opts)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	if opts.Dialect == SQLite {
		// single writer; concurrent callers queue on the pool instead of
		// failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, Dialect: opts.Dialect}, nil
}

func dataSource(opts Options) (driver, dsn string, err error) {
	switch opts.Dialect {
	case MySQL:
		auth := opts.User
		if opts.Pass != "" {
			auth = fmt.Sprintf("%s:%s", opts.User, opts.Pass)
		}
		return "mysql", fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			auth, opts.Host, opts.Port, opts.Name), nil
	case Postgres:
		return "pgx", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			opts.Host, opts.Port, opts.User, opts.Pass, opts.Name), nil
	case SQLite:
		if strings.TrimSpace(opts.Path) == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		return "sqlite", filepath.Clean(opts.Path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	}
	return "", "", fmt.Errorf("unsupported dialect %q", opts.Dialect)
}

// Rebind rewrites '?' placeholders into the form the dialect expects.
// Queries in this repository never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Placeholders returns n comma separated '?' markers for IN clauses.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
