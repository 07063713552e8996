package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or state precondition.
	ErrConflict = errors.New("record conflict")
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("database unavailable")
)
