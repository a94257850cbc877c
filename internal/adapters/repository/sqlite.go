package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Default connection pool configuration.
const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultBusyTimeout  = 5 * time.Second
)

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db           *sql.DB
	path         string
	walMode      bool
	maxOpenConns int
	maxIdleConns int
	busyTimeout  time.Duration
}

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithWALMode enables write-ahead logging for better concurrency
// between ingestion writers and query readers.
func WithWALMode(enabled bool) Option {
	return func(s *SQLiteStore) {
		s.walMode = enabled
	}
}

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithBusyTimeout sets how long a writer waits on a locked database
// before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// NewSQLiteStore opens (and if needed creates) the corpus database.
// Pass ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		path:         dataSourceName,
		walMode:      true,
		maxOpenConns: defaultMaxOpenConns,
		maxIdleConns: defaultMaxIdleConns,
		busyTimeout:  defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Pragmas ride on the DSN so every connection the pool opens gets
	// them; a plain PRAGMA exec only reaches the one connection that
	// happened to run it.
	db, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dataSourceName == ":memory:" {
		// A pool of connections would each see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
		db.SetMaxIdleConns(s.maxIdleConns)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn appends the per-connection parameters to the configured path.
func (s *SQLiteStore) dsn() string {
	params := []string{
		"_foreign_keys=on",
		fmt.Sprintf("_busy_timeout=%d", s.busyTimeout.Milliseconds()),
	}
	if s.walMode && s.path != ":memory:" {
		params = append(params, "_journal_mode=WAL")
	}
	sep := "?"
	if strings.Contains(s.path, "?") {
		sep = "&"
	}
	return s.path + sep + strings.Join(params, "&")
}

// initSchema creates the tables and indexes if missing.
func (s *SQLiteStore) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
