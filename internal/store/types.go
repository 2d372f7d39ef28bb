package store

import (
	"errors"
)

var (
	// ErrNotFound indicates that the requested snapshot was not found.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStorage indicates a durable-store failure: the store is
	// unavailable, a write failed, or quota was exceeded. Previously
	// stored snapshots are unaffected.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLeaseHeld indicates that another writer holds the stream lease.
	ErrLeaseHeld = errors.New("stream lease held by another writer")
)
