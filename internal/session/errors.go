package session

import "errors"

var (
	// ErrConnectFailed is returned when the single connect attempt fails.
	ErrConnectFailed = errors.New("session: connect failed")

	// ErrSubscribeFailed is returned when a subscription is rejected.
	// Topics subscribed before the failure stay subscribed.
	ErrSubscribeFailed = errors.New("session: subscribe failed")

	// ErrTransport wraps transport errors surfaced while polling.
	ErrTransport = errors.New("session: transport error")

	// ErrNotConnected is returned when an operation needs a live session.
	ErrNotConnected = errors.New("session: not connected")
)
