package store

import "errors"

var (
	// ErrNotFound is returned when no directory row exists for the given id.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a create collides with an existing row,
	// typically two near-simultaneous identity bootstraps racing.
	ErrConflict = errors.New("store: conflict")
)
