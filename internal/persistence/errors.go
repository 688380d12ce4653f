package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("persistence: store unavailable")
	// ErrInvalidDocument is returned when fields cannot be encoded for storage.
	ErrInvalidDocument = errors.New("persistence: invalid document")
)
