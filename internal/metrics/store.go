package metrics

import (
	"context"
	"time"

	"github.com/sakif/time-estimator/internal/docstore"
)

// compile-time check that *InstrumentedStore implements docstore.Store
var _ docstore.Store = (*InstrumentedStore)(nil)

// InstrumentedStore wraps a docstore.Store and records every call.
// Results and errors pass through unchanged.
type InstrumentedStore struct {
	next      docstore.Store
	collector *Collector
}

func InstrumentStore(next docstore.Store, c *Collector) *InstrumentedStore {
	return &InstrumentedStore{next: next, collector: c}
}

func (s *InstrumentedStore) Insert(ctx context.Context, collection string, fields docstore.Fields) (docstore.Document, error) {
	start := time.Now()
	doc, err := s.next.Insert(ctx, collection, fields)
	s.collector.RecordStoreOp("insert", collection, err, time.Since(start))
	return doc, err
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	start := time.Now()
	doc, err := s.next.Get(ctx, collection, id)
	s.collector.RecordStoreOp("get", collection, err, time.Since(start))
	return doc, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, collection, id)
	s.collector.RecordStoreOp("delete", collection, err, time.Since(start))
	return err
}

func (s *InstrumentedStore) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	start := time.Now()
	docs, err := s.next.Find(ctx, q)
	s.collector.RecordStoreOp("find", q.Collection, err, time.Since(start))
	return docs, err
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
