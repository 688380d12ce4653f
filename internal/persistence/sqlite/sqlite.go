// Package sqlite stores console documents as JSON rows in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/screening-console/internal/persistence"
)

var _ persistence.DocumentStore = (*Store)(nil)

// Store implements persistence.DocumentStore on a single documents table.
type Store struct {
	pool        *ConnectionPool
	retry       *RetryHelper
	mapper      ErrorMapper
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:        pool,
		retry:       NewRetryHelper(DefaultRetryConfig()),
		idGenerator: uuid.NewString,
		now:         time.Now,
		logger:      logger.With("component", "sqlite"),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Query returns documents of collection matching filters in insertion order.
// String filters are evaluated by SQLite, the rest in process.
func (s *Store) Query(ctx context.Context, collection string, filters ...persistence.Filter) ([]persistence.Document, error) {
	query := `SELECT id, payload FROM documents WHERE collection = ?`
	args := []any{collection}
	for _, f := range filters {
		if v, ok := f.Value.(string); ok {
			query += ` AND json_extract(payload, ?) = ?`
			args = append(args, "$."+f.Field, v)
		}
	}
	query += ` ORDER BY rowid`

	var out []persistence.Document
	err := s.retry.WithRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.pool.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id, payload string
			if err := rows.Scan(&id, &payload); err != nil {
				return err
			}
			fields, err := decode(payload)
			if err != nil {
				return fmt.Errorf("sqlite: %s/%s: %w", collection, id, err)
			}
			if !persistence.Matches(fields, filters) {
				continue
			}
			out = append(out, persistence.Document{ID: id, Fields: fields})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []persistence.Document{}
	}
	return out, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (persistence.Document, error) {
	var payload string
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT payload FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&payload)
	if err != nil {
		return persistence.Document{}, fmt.Errorf("sqlite: get %s/%s: %w", collection, id, s.mapper.MapError(err))
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
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	err = s.retry.WithRetry(ctx, func() error {
		_, err := s.pool.DB().ExecContext(ctx,
			`INSERT INTO documents (collection, id, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, payload, stamp, stamp,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: add %s: %w", collection, err)
	}
	return id, nil
}

// Update merges fields into an existing document inside a transaction.
func (s *Store) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	patch, err := persistence.Normalize(fields)
	if err != nil {
		return err
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var current string
			err := tx.QueryRowContext(ctx,
				`SELECT payload FROM documents WHERE collection = ? AND id = ?`, collection, id,
			).Scan(&current)
			if err != nil {
				return fmt.Errorf("sqlite: update %s/%s: %w", collection, id, s.mapper.MapError(err))
			}
			base, err := decode(current)
			if err != nil {
				return err
			}
			payload, err := encode(persistence.Merge(base, patch))
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE documents SET payload = ?, updated_at = ? WHERE collection = ? AND id = ?`,
				payload, stamp, collection, id,
			)
			return err
		})
	})
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	var affected int64
	err := s.retry.WithRetry(ctx, func() error {
		res, err := s.pool.DB().ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: delete %s/%s: %w", collection, id, persistence.ErrNotFound)
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

func decode(payload string) (persistence.Fields, error) {
	fields := persistence.Fields{}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", persistence.ErrInvalidDocument, err)
	}
	return fields, nil
}
