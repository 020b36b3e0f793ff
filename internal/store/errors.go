// Package store holds the error values shared by every persistence backend
// (memory, Postgres, MongoDB) so that services can match them with errors.Is
// without depending on a particular driver.
package store

import "errors"

var (
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrVersionConflict is returned by compare-and-swap updates when the stored
	// version no longer matches the version the caller read.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrStoreUnavailable wraps every driver or network failure.
	ErrStoreUnavailable = errors.New("store: unavailable")
)
