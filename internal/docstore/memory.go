package docstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"
)

// compile-time check that *Memory implements Store
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Documents are copied on the way in and on
// the way out, so callers can never alias stored state.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	now         func() time.Time
	closed      bool
}

type memCollection struct {
	order []string // insertion order of live IDs
	docs  map[string]Fields
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces the clock used to resolve ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]*memCollection),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Insert(ctx context.Context, collection string, fields Fields) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := ValidateName(collection); err != nil {
		return Document{}, err
	}
	resolved, err := ResolveFields(fields, m.now())
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Document{}, ErrClosed
	}

	c, ok := m.collections[collection]
	if !ok {
		c = &memCollection{docs: make(map[string]Fields)}
		m.collections[collection] = c
	}

	id := xid.New().String()
	c.docs[id] = resolved
	c.order = append(c.order, id)

	return Document{ID: id, Fields: copyFields(resolved)}, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	fields, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return &Document{ID: id, Fields: copyFields(fields)}, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, _ := Normalize(f.Value) // validated above
		filters[i] = Filter{Field: f.Field, Value: v}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	result := []Document{}
	c, ok := m.collections[q.Collection]
	if !ok {
		return result, nil
	}

	for _, id := range c.order {
		fields := c.docs[id]
		if !matches(fields, filters) {
			continue
		}
		if q.Order != nil && fields[q.Order.Field] == nil {
			continue
		}
		result = append(result, Document{ID: id, Fields: copyFields(fields)})
	}

	if q.Order != nil {
		field, desc := q.Order.Field, q.Order.Direction == Desc
		// ties follow the sort direction on insertion order
		if desc {
			slices.Reverse(result)
		}
		sort.SliceStable(result, func(i, j int) bool {
			c := Compare(result[i].Fields[field], result[j].Fields[field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	return result, nil
}

// Close marks the store closed. Stored documents are dropped.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.collections = nil
	return nil
}

// Len returns the number of live documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.docs)
	}
	return 0
}

func matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || !Equal(v, f.Value) {
			return false
		}
	}
	return true
}

func copyFields(src Fields) Fields {
	dst := make(Fields, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
