package metrics

import (
	"context"
	"time"

	"github.com/example/screening-console/internal/persistence"
)

// InstrumentedStore counts and times every call to the wrapped store.
type InstrumentedStore struct {
	next    persistence.DocumentStore
	metrics *Metrics
}

var _ persistence.DocumentStore = (*InstrumentedStore)(nil)

// InstrumentStore wraps store. A nil m returns store unchanged.
func InstrumentStore(store persistence.DocumentStore, m *Metrics) persistence.DocumentStore {
	if m == nil {
		return store
	}
	return &InstrumentedStore{next: store, metrics: m}
}

func (s *InstrumentedStore) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	started := time.Now()
	docs, err := s.next.Query(ctx, collection, filters...)
	s.metrics.observeStore(collection, "query", started, err)
	return docs, err
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (persistence.Document, error) {
	started := time.Now()
	doc, err := s.next.Get(ctx, collection, id)
	s.metrics.observeStore(collection, "get", started, err)
	return doc, err
}

func (s *InstrumentedStore) Add(ctx context.Context, collection string, fields persistence.Fields) (string, error) {
	started := time.Now()
	id, err := s.next.Add(ctx, collection, fields)
	s.metrics.observeStore(collection, "add", started, err)
	return id, err
}

func (s *InstrumentedStore) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	started := time.Now()
	err := s.next.Update(ctx, collection, id, fields)
	s.metrics.observeStore(collection, "update", started, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, collection, id string) error {
	started := time.Now()
	err := s.next.Delete(ctx, collection, id)
	s.metrics.observeStore(collection, "delete", started, err)
	return err
}
