package store

import "errors"

var (
	// ErrConflict means the slot was taken by the time the write committed.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means the row does not exist in the caller's tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is a transient store failure; safe to retry with backoff.
	ErrUnavailable = errors.New("store unavailable")
)
