package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("repository: record already exists")
)
