package persistence

import "context"

// DocumentStore is a schemaless collection store. Update merges the given
// fields into the stored document. Every method returns ErrNotFound (wrapped)
// when the addressed document does not exist.
type DocumentStore interface {
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
}
