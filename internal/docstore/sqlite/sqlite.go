// Package sqlite implements docstore.Store on an embedded SQLite database.
//
// DOCUMENTS IN A RELATIONAL TABLE:
// Every document is one row of a single `documents` table: the collection
// name, the xid document ID, and the fields as a JSON object in `data`.
// Filters and ordering use SQLite's JSON1 functions:
//
//	json_extract(data, '$.authorId') = ?
//	ORDER BY json_extract(data, '$.createdAt._ts') DESC
//
// Times are stored as {"_ts": <unix nanoseconds>} (see docstore.EncodeJSON)
// so they sort numerically. Expression indexes on authorId/memberId/createdAt
// serve the queries the repositories issue.
//
// modernc.org/sqlite is a pure Go translation of SQLite: no CGo, no C
// compiler, cross-compiles everywhere Go does.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// BLANK IMPORT:
	// The sqlite package's init() registers the "sqlite" driver with
	// database/sql; sql.Open("sqlite", ...) relies on it.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements docstore.Store.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces the clock used to resolve docstore.ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New opens the database and runs migrations.
//
// dbPath examples:
//   - "data/estimator.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests; lost on close)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own empty database, so the pool
	// must never grow past one connection.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the documents table and its indexes.
// CREATE ... IF NOT EXISTS keeps it safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (collection, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	// Members are listed by author and history by author newest-first: one
	// index on (collection, authorId, createdAt sort key) serves both. Its
	// last expression must match sortKey("createdAt") character for character.
	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_member
			ON documents(collection, json_extract(data, '$.memberId'));
		CREATE INDEX IF NOT EXISTS idx_documents_author_created
			ON documents(collection, json_extract(data, '$.authorId'), ` + sortKey("createdAt") + `);
	`)
	if err != nil {
		return fmt.Errorf("creating documents indexes: %w", err)
	}

	return nil
}
