package journal

import "errors"

var (
	// ErrNoDatabase is returned by New when the database handle is nil.
	ErrNoDatabase = errors.New("journal: database handle is nil")
)
