package wifi

import "errors"

var (
	// ErrAssociationFailed is returned when the link did not reach StatusGotIP.
	// It is not fatal; the caller decides whether to retry.
	ErrAssociationFailed = errors.New("wifi: association failed")

	// ErrDriver wraps failures reported by a Driver implementation.
	ErrDriver = errors.New("wifi: driver error")
)
