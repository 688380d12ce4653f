// Package firestore adapts a Cloud Firestore project to persistence.DocumentStore.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/screening-console/internal/persistence"
)

var _ persistence.DocumentStore = (*Store)(nil)

// Store wraps a Firestore client. Collections map one to one.
type Store struct {
	client *firestore.Client
}

// Open creates a client for projectID. When FIRESTORE_EMULATOR_HOST is set the
// client talks to the emulator.
func Open(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStore wraps an existing client.
func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Query runs an equality query on collection.
func (s *Store) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		value, err := normalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		q = q.Where(f.Field, "==", value)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []persistence.Document{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(fmt.Sprintf("query %s", collection), err)
		}
		fields, err := persistence.Normalize(snap.Data())
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.Document{ID: snap.Ref.ID, Fields: fields})
	}
	return out, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (persistence.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Document{}, mapError(fmt.Sprintf("get %s/%s", collection, id), err)
	}
	fields, err := persistence.Normalize(snap.Data())
	if err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{ID: id, Fields: fields}, nil
}

// Add creates a document with a Firestore generated id.
func (s *Store) Add(ctx context.Context, collection string, fields persistence.Fields) (string, error) {
	data, err := persistence.Normalize(fields)
	if err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]any(data))
	if err != nil {
		return "", mapError(fmt.Sprintf("add %s", collection), err)
	}
	return ref.ID, nil
}

// Update sets the given top-level fields; it fails when the document is missing.
func (s *Store) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	data, err := persistence.Normalize(fields)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapError(fmt.Sprintf("update %s/%s", collection, id), err)
	}
	return nil
}

// Delete removes a document, failing when it does not exist.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		return mapError(fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	return nil
}

func normalizeValue(v any) (any, error) {
	wrapped, err := persistence.Normalize(persistence.Fields{"v": v})
	if err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}

func mapError(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("firestore: %s: %w", op, persistence.ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("firestore: %s: %w: %v", op, persistence.ErrUnavailable, err)
	}
	return fmt.Errorf("firestore: %s: %w", op, err)
}
