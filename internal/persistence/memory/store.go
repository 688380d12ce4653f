// Package memory provides a process-local DocumentStore used for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/screening-console/internal/persistence"
)

var _ persistence.DocumentStore = (*Store)(nil)

type record struct {
	seq    uint64
	fields persistence.Fields
}

// Store keeps documents in maps guarded by a single lock.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]record
	seq         uint64
	idGenerator func() string
}

// NewStore returns an empty store. A nil idGenerator falls back to random UUIDs.
func NewStore(idGenerator func() string) *Store {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &Store{
		collections: make(map[string]map[string]record),
		idGenerator: idGenerator,
	}
}

// Query returns matching documents in insertion order.
func (s *Store) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	type hit struct {
		seq uint64
		doc persistence.Document
	}
	hits := make([]hit, 0, len(docs))
	for id, rec := range docs {
		if !persistence.Matches(rec.fields, filters) {
			continue
		}
		hits = append(hits, hit{seq: rec.seq, doc: persistence.Document{ID: id, Fields: clone(rec.fields)}})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	out := make([]persistence.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return persistence.Document{}, notFound(collection, id)
	}
	return persistence.Document{ID: id, Fields: clone(rec.fields)}, nil
}

// Add stores fields under a generated id.
func (s *Store) Add(ctx context.Context, collection string, fields persistence.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized, err := persistence.Normalize(fields)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]record)
		s.collections[collection] = docs
	}
	id := s.idGenerator()
	if _, exists := docs[id]; exists || id == "" {
		return "", fmt.Errorf("memory: cannot allocate id %q in %s", id, collection)
	}
	s.seq++
	docs[id] = record{seq: s.seq, fields: normalized}
	return id, nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := persistence.Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return notFound(collection, id)
	}
	rec.fields = persistence.Merge(rec.fields, normalized)
	s.collections[collection][id] = rec
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return notFound(collection, id)
	}
	delete(s.collections[collection], id)
	return nil
}

func notFound(collection, id string) error {
	return fmt.Errorf("memory: %s/%s: %w", collection, id, persistence.ErrNotFound)
}

func clone(fields persistence.Fields) persistence.Fields {
	out, err := persistence.Normalize(fields)
	if err != nil {
		return persistence.Merge(nil, fields)
	}
	return out
}
