// Package store persists users, sessions and analysis records in SQLite
// or Postgres.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/scanzie/smeal/internal/logging"
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Store wraps a *sql.DB with the queries the dashboard needs. Queries are
// written with ? placeholders and rebound for Postgres.
type Store struct {
	db     *sql.DB
	driver string
	logger logging.Logger
}

// Open connects to the database named by driver and dsn and applies the
// schema. For sqlite, dsn is a file path (its directory is created) or a
// "file:" URI.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s, err := New(ctx, db, driver, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened db and runs migrations.
func New(ctx context.Context, db *sql.DB, driver string, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Store{db: db, driver: driver, logger: logger.With(logging.Field{Key: "component", Value: "store"})}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema for the store's driver. It is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	var name string
	switch s.driver {
	case DriverSQLite:
		name = "schema_sqlite.sql"
		if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
			s.logger.Warn("sqlite pragmas failed", logging.Field{Key: "error", Value: err})
		}
	case DriverPostgres:
		name = "schema_postgres.sql"
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.driver)
	}

	schemaSQL, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	s.logger.Debug("schema applied", logging.Field{Key: "driver", Value: s.driver})
	return nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders to $1..$n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
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

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}
