package supervisor

import "errors"

var (
	// ErrLinkLost is returned when the link reports disconnected while
	// serving, or right after a successful association.
	ErrLinkLost = errors.New("supervisor: network link lost")
)

// FailureKind classifies why a cycle ended.
type FailureKind string

// Failure kinds.
const (
	FailureNone            FailureKind = ""
	FailureLinkAssociation FailureKind = "link_association"
	FailureDiscovery       FailureKind = "discovery"
	FailureSessionConnect  FailureKind = "session_connect"
	FailureSubscription    FailureKind = "subscription"
	FailureTransport       FailureKind = "transport"
	FailureLinkLost        FailureKind = "link_lost"
	FailurePayloadParse    FailureKind = "payload_parse"
	FailureCancelled       FailureKind = "cancelled"
	FailureUnknown         FailureKind = "unknown"
)

// CycleError is the error that ended a cycle, tagged with its kind.
type CycleError struct {
	Kind FailureKind
	Err  error
}

func (e *CycleError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func fail(kind FailureKind, err error) error {
	return &CycleError{Kind: kind, Err: err}
}
