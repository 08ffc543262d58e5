package discovery

import "errors"

var (
	// ErrNotFound is returned when no usable service instance answered
	// before the timeout.
	ErrNotFound = errors.New("discovery: broker not found")

	// ErrBrowse is returned when the mDNS browse itself failed.
	ErrBrowse = errors.New("discovery: browse failed")
)
