package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no resolution is stored for a key.
	ErrNotFound = errors.New("resolution not found")
)
