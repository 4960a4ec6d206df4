package store

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no document or row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidID is returned for identifiers that cannot be parsed.
	ErrInvalidID = errors.New("invalid id")
)
