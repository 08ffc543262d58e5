package database

import "errors"

var (
	// ErrEmptyPath is returned by Open when no database path is configured.
	ErrEmptyPath = errors.New("database: path is empty")

	// ErrDuplicateVersion is returned when two migration files share a version.
	ErrDuplicateVersion = errors.New("database: duplicate migration version")
)
