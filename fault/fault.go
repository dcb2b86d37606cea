// Package fault defines the error taxonomy shared by every QC domain
// package. Callers classify failures with errors.Is against the four
// sentinels; domain packages attach context with the *f constructors.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing required input. Caller's
	// fault, not retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced unit or inspection that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an illegal state transition or a concurrent-write
	// conflict. The whole operation is safe to retry from scratch.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a persistence layer failure. Transient, retry with
	// backoff.
	ErrStorage = errors.New("storage failure")
)

func Validationf(format string, args ...any) error {
	return wrapf(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return wrapf(ErrNotFound, format, args...)
}

func Conflictf(format string, args ...any) error {
	return wrapf(ErrConflict, format, args...)
}

func Storagef(format string, args ...any) error {
	return wrapf(ErrStorage, format, args...)
}

// Storagew wraps a persistence-layer cause so callers can both classify the
// failure as transient and still inspect the underlying driver error.
func Storagew(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), err, ErrStorage)
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsStorage(err error) bool    { return errors.Is(err, ErrStorage) }
