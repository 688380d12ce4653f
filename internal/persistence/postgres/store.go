// Package postgres stores console documents as JSONB rows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/example/screening-console/internal/persistence"
)

var _ persistence.DocumentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/console?sslmode=disable"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    seq        BIGSERIAL,
    payload    JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_payload ON documents USING GIN (payload jsonb_path_ops);`

// Store implements persistence.DocumentStore on PostgreSQL.
type Store struct {
	db          *sql.DB
	idGenerator func() string
}

// Open connects to dsn (falling back to a local default), verifies the
// connection and ensures the documents table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w: %v", persistence.ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return &Store{db: db, idGenerator: uuid.NewString}, nil
}

// DB exposes the handle for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query filters with JSONB containment and returns documents in insertion order.
func (s *Store) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	probe := persistence.Fields{}
	for _, f := range filters {
		probe[f.Field] = f.Value
	}
	contains, err := json.Marshal(probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", persistence.ErrInvalidDocument, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM documents WHERE collection = $1 AND payload @> $2::jsonb ORDER BY seq`,
		collection, string(contains),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", collection, err)
	}
	defer rows.Close()

	out := []persistence.Document{}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", collection, err)
		}
		fields, err := decode(payload)
		if err != nil {
			return nil, err
		}
		if persistence.Matches(fields, filters) {
			out = append(out, persistence.Document{ID: id, Fields: fields})
		}
	}
	return out, rows.Err()
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (persistence.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Document{}, fmt.Errorf("postgres: %s/%s: %w", collection, id, persistence.ErrNotFound)
	}
	if err != nil {
		return persistence.Document{}, fmt.Errorf("postgres: get %s/%s: %w", collection, id, err)
	}
	fields, err := decode(payload)
	if err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{ID: id, Fields: fields}, nil
}

// Add inserts fields under a new UUID.
func (s *Store) Add(ctx context.Context, collection string, fields persistence.Fields) (string, error) {
	payload, err := encode(fields)
	if err != nil {
		return "", err
	}
	id := s.idGenerator()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, payload) VALUES ($1, $2, $3::jsonb)`,
		collection, id, payload,
	); err != nil {
		return "", fmt.Errorf("postgres: add %s: %w", collection, err)
	}
	return id, nil
}

// Update merges fields into the stored payload with the jsonb || operator.
func (s *Store) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	payload, err := encode(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET payload = payload || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: update %s/%s: %w", collection, id, err)
	}
	return requireRow(res, collection, id)
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete %s/%s: %w", collection, id, err)
	}
	return requireRow(res, collection, id)
}

func requireRow(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres: %s/%s: %w", collection, id, persistence.ErrNotFound)
	}
	return nil
}

func encode(fields persistence.Fields) (string, error) {
	normalized, err := persistence.Normalize(fields)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", persistence.ErrInvalidDocument, err)
	}
	return string(raw), nil
}

func decode(payload []byte) (persistence.Fields, error) {
	fields := persistence.Fields{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", persistence.ErrInvalidDocument, err)
	}
	return fields, nil
}
