package registry

import "errors"

var (
	// ErrInvalidBinding is returned when a binding has an empty topic or slot.
	ErrInvalidBinding = errors.New("registry: invalid binding")

	// ErrDuplicateTopic is returned when two bindings name the same topic.
	ErrDuplicateTopic = errors.New("registry: duplicate topic")

	// ErrInvalidPayload is returned by Dispatch when a payload on a bound
	// topic is not UTF-8 text holding a number.
	ErrInvalidPayload = errors.New("registry: invalid payload")
)
