// Package docstore is the boundary with the document database.
//
// The store is a keyed-collection database: every document lives in a named
// collection, has a store-generated ID and a flat map of fields. Queries are
// equality filters on named fields plus an optional single ordering.
//
// Three backends implement Store:
//
//	docstore.NewMemory()          in-process, used by tests and ephemeral runs
//	docstore/sqlite.New(path)     embedded JSON documents on SQLite (default)
//	docstore/postgres.New(url)    JSONB documents on PostgreSQL
//
// Field values are restricted to scalars: string, bool, integers, floats and
// time.Time. Times are kept in each backend's native temporal representation
// and always come back as time.Time in UTC. Insert replaces ServerTimestamp
// with the store's clock, which is how createdAt is stamped server-side.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("docstore: store is closed")

	// ErrInvalidName is returned for collection or field names that are not
	// plain identifiers. Names end up inside SQL JSON paths, so the rule is strict.
	ErrInvalidName = errors.New("docstore: invalid name")
)

// Fields is the field map of a document.
type Fields map[string]any

// Document is one stored document: its ID plus its fields.
type Document struct {
	ID     string
	Fields Fields
}

// Store is the keyed-collection interface every backend implements.
//
// Absence is never an error: Get returns (nil, nil) for an unknown ID and
// Delete of an unknown ID succeeds.
type Store interface {
	// Insert stores a new document under a generated ID and returns it with
	// its fields as stored (ServerTimestamp resolved).
	Insert(ctx context.Context, collection string, fields Fields) (Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	// Find runs q and returns the matching documents as one snapshot.
	// Without an ordering, documents come back in insertion order.
	Find(ctx context.Context, q Query) ([]Document, error)
	Close() error
}

// Direction is the sort direction of an ordered query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Filter is an equality condition: Field == Value.
type Filter struct {
	Field string
	Value any
}

// Order sorts results by one field. Documents without the field, or with a
// null value, are left out of an ordered result, as an index-backed query
// would. Documents with equal values follow insertion order in the same
// direction: oldest first for Asc, newest first for Desc.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from one collection. Build it with Collection and
// chain Where/OrderBy; each call returns a new Query.
type Query struct {
	Collection string
	Filters    []Filter
	Order      *Order
}

// Collection starts a query over the named collection.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Where adds an equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// OrderBy sets the result ordering, replacing any previous one.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Order = &Order{Field: field, Direction: dir}
	return q
}

// Validate checks every name the query carries and every filter value.
func (q Query) Validate() error {
	if err := ValidateName(q.Collection); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if err := ValidateName(f.Field); err != nil {
			return err
		}
		if _, err := Normalize(f.Value); err != nil {
			return fmt.Errorf("docstore: filter %s: %w", f.Field, err)
		}
	}
	if q.Order != nil {
		if err := ValidateName(q.Order.Field); err != nil {
			return err
		}
	}
	return nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName reports whether name can be used as a collection or field name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// String is used in log lines.
func (q Query) String() string {
	s := q.Collection
	for _, f := range q.Filters {
		s += fmt.Sprintf(" where %s == %v", f.Field, f.Value)
	}
	if q.Order != nil {
		s += fmt.Sprintf(" order by %s %s", q.Order.Field, q.Order.Direction)
	}
	return s
}
