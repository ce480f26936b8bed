package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/time-estimator/internal/docstore"
)

// compile-time check that *DB implements docstore.Store
var _ docstore.Store = (*DB)(nil)

// Insert stores a new document.
//
// The ID is an xid: 20 URL-safe characters, roughly sortable by creation
// time. Insertion order itself is tracked by the AUTOINCREMENT `seq` column,
// which is what unordered queries sort by.
func (db *DB) Insert(ctx context.Context, collection string, fields docstore.Fields) (docstore.Document, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return docstore.Document{}, err
	}
	resolved, err := docstore.ResolveFields(fields, db.now())
	if err != nil {
		return docstore.Document{}, err
	}
	data, err := docstore.EncodeJSON(resolved)
	if err != nil {
		return docstore.Document{}, err
	}

	id := xid.New().String()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)`,
		collection, id, string(data), time.Now().UTC(),
	)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: inserting into %s: %w", collection, err)
	}

	return docstore.Document{ID: id, Fields: resolved}, nil
}

// Get returns the document or (nil, nil) when no row matches.
func (db *DB) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return nil, err
	}

	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", collection, id, err)
	}

	fields, err := docstore.DecodeJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("sqlite: decoding %s/%s: %w", collection, id, err)
	}
	return &docstore.Document{ID: id, Fields: fields}, nil
}

// Delete removes a document. Unlike an UPDATE, zero affected rows is not
// reported: deleting an unknown ID is a no-op.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateName(collection); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Find translates q into one SELECT, so the result is a single snapshot.
func (db *DB) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args := findSQL(q)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying %s: %w", q.Collection, err)
	}
	// CRITICAL: always close rows when done!
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", q.Collection, err)
		}
		fields, err := docstore.DecodeJSON([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("sqlite: decoding %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", q.Collection, err)
	}

	return docs, nil
}

// findSQL builds the SELECT for a validated query.
//
// Field names are interpolated into JSON paths; docstore.Query.Validate has
// already restricted them to identifiers. Values always go through
// placeholders. The expressions are written exactly as the indexes in
// migrate declare them, otherwise SQLite cannot use those indexes.
//
// Times are stored as {"_ts": nanos}, other values as themselves, so the
// sort key takes the nanoseconds when present. Ties follow the sort
// direction on insertion order (seq), which lets one index scan, forwards
// or backwards, produce the whole order.
func findSQL(q docstore.Query) (string, []any) {
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		v, _ := docstore.Normalize(f.Value)
		switch v := v.(type) {
		case nil:
			fmt.Fprintf(&sb, ` AND json_type(data, '$.%s') = 'null'`, f.Field)
		case time.Time:
			fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s.%s') = ?`, f.Field, docstore.TimestampKey)
			args = append(args, v.UnixNano())
		case bool:
			fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') = ?`, f.Field)
			args = append(args, boolInt(v))
		default:
			fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') = ?`, f.Field)
			args = append(args, v)
		}
	}

	if q.Order == nil {
		sb.WriteString(` ORDER BY seq ASC`)
		return sb.String(), args
	}

	dir := "ASC"
	if q.Order.Direction == docstore.Desc {
		dir = "DESC"
	}
	// json_extract turns a JSON null into SQL NULL: null values are left out
	// like missing ones
	fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') IS NOT NULL`, q.Order.Field)
	fmt.Fprintf(&sb, ` ORDER BY %s %s, seq %s`, sortKey(q.Order.Field), dir, dir)
	return sb.String(), args
}

// sortKey is the ordering expression for field, shared with the indexes.
func sortKey(field string) string {
	return fmt.Sprintf(`COALESCE(json_extract(data, '$.%[1]s.%[2]s'), json_extract(data, '$.%[1]s'))`,
		field, docstore.TimestampKey)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
