// Package postgres implements docstore.Store on PostgreSQL JSONB.
//
// The layout mirrors the sqlite backend: one `documents` table keyed by
// (collection, id) with the fields in a JSONB `data` column. Field names are
// passed as query parameters (data -> $2::text), so no identifier ever reaches the
// SQL text. Equality compares JSONB values, which makes 3 and 3.0 equal the
// same way the in-memory backend does.
//
// The table and its indexes are created by embedded golang-migrate
// migrations, applied by New.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/rs/xid"

	"github.com/sakif/time-estimator/internal/docstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// compile-time check that *DB implements docstore.Store
var _ docstore.Store = (*DB)(nil)

// DB is a PostgreSQL-backed document store.
type DB struct {
	conn *sql.DB
	now  func() time.Time // nil: ask the database clock
}

// Option configures a DB.
type Option func(*DB)

// WithClock resolves docstore.ServerTimestamp with a local clock instead of
// the database's now().
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New connects, verifies the connection and applies pending migrations.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	if err := RunMigrations(databaseURL); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// RunMigrations applies all embedded migrations. Being up to date is not an
// error.
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("postgres: creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the scheme golang-migrate's pgx/v5
// driver is registered under.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Insert(ctx context.Context, collection string, fields docstore.Fields) (docstore.Document, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return docstore.Document{}, err
	}

	now, err := db.clock(ctx, fields)
	if err != nil {
		return docstore.Document{}, err
	}
	resolved, err := docstore.ResolveFields(fields, now)
	if err != nil {
		return docstore.Document{}, err
	}
	data, err := docstore.EncodeJSON(resolved)
	if err != nil {
		return docstore.Document{}, err
	}

	id := xid.New().String()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(data),
	)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("postgres: inserting into %s: %w", collection, err)
	}
	return docstore.Document{ID: id, Fields: resolved}, nil
}

// clock returns the instant ServerTimestamp resolves to. The database is
// only asked when a field actually needs it.
func (db *DB) clock(ctx context.Context, fields docstore.Fields) (time.Time, error) {
	if db.now != nil {
		return db.now(), nil
	}
	needed := false
	for _, v := range fields {
		if v == docstore.ServerTimestamp {
			needed = true
			break
		}
	}
	if !needed {
		return time.Now(), nil
	}

	var now time.Time
	if err := db.conn.QueryRowContext(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("postgres: reading server clock: %w", err)
	}
	return now, nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return nil, err
	}

	var data []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting %s/%s: %w", collection, id, err)
	}

	fields, err := docstore.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("postgres: decoding %s/%s: %w", collection, id, err)
	}
	return &docstore.Document{ID: id, Fields: fields}, nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateName(collection); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	); err != nil {
		return fmt.Errorf("postgres: deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (db *DB) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args, err := findSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: querying %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("postgres: scanning %s row: %w", q.Collection, err)
		}
		fields, err := docstore.DecodeJSON(data)
		if err != nil {
			return nil, fmt.Errorf("postgres: decoding %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating %s: %w", q.Collection, err)
	}
	return docs, nil
}

// findSQL builds the SELECT for a validated query.
//
// Field names are interpolated as JSON keys (Validate restricted them to
// identifiers) so the expressions read exactly like the ones the migrations
// index; a key passed as a parameter would never match an index. Values go
// through placeholders.
func findSQL(q docstore.Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		v, _ := docstore.Normalize(f.Value)
		encoded, err := json.Marshal(docstore.EncodeValue(v))
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encoding filter %s: %w", f.Field, err)
		}
		args = append(args, string(encoded))
		fmt.Fprintf(&sb, ` AND (data -> '%s') = $%d::jsonb`, f.Field, len(args))
	}

	if q.Order == nil {
		sb.WriteString(` ORDER BY seq ASC`)
		return sb.String(), args, nil
	}

	dir := "ASC"
	if q.Order.Direction == docstore.Desc {
		dir = "DESC"
	}
	// a JSON null is a non-NULL jsonb value; it is left out like a missing field
	fmt.Fprintf(&sb, ` AND jsonb_typeof(data -> '%s') <> 'null'`, q.Order.Field)
	fmt.Fprintf(&sb, ` ORDER BY %s %s, seq %s`, sortKey(q.Order.Field), dir, dir)
	return sb.String(), args, nil
}

// sortKey is the ordering expression for field, as the migrations index it.
// Times are {"_ts": nanos}; jsonb compares numbers numerically.
func sortKey(field string) string {
	return fmt.Sprintf(`COALESCE(data -> '%[1]s' -> '%[2]s', data -> '%[1]s')`, field, docstore.TimestampKey)
}

// Truncate removes every document. Used by tests against a shared database.
func (db *DB) Truncate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `TRUNCATE documents`); err != nil {
		return fmt.Errorf("postgres: truncating documents: %w", err)
	}
	return nil
}
