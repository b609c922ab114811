// Package apperr defines the error taxonomy shared across the engine.
//
// Transient and not-found errors are isolated per post or per attachment and
// reported in aggregate at the end of a batch; only store-level or
// configuration-level errors abort a run.
package apperr

import "errors"

var (
	// ErrNotFound marks a missing remote resource (404-class). The
	// reference is left dangling and processing continues.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a fetch failure expected to succeed on retry.
	ErrTransient = errors.New("transient failure")

	// ErrMalformed marks input with an unexpected shape. Extraction
	// degrades to a partial result for the affected sub-element only.
	ErrMalformed = errors.New("malformed input")

	// ErrConflict marks an optimistic-concurrency mismatch in the composer.
	ErrConflict = errors.New("conflict")

	ErrAlreadyExists = errors.New("already exists")
)

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound reports whether err is a missing-remote error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
