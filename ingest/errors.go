package ingest

import (
	"errors"
	"fmt"
)

// EntityNotFoundError reports a lookup for an upstream-keyed record that has
// not been ingested yet.
type EntityNotFoundError struct {
	Collection string
	SourceID   string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity not found: collection=%s, sourceId=%s", e.Collection, e.SourceID)
}

// IsEntityNotFound reports whether err wraps an EntityNotFoundError.
func IsEntityNotFound(err error) bool {
	var notFound *EntityNotFoundError
	return errors.As(err, &notFound)
}

// PersistenceError wraps a storage-layer failure. It is kept distinct from
// data-correctness errors so callers can decide to retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence unavailable: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
