package wifi

// Driver is the narrow interface to a platform WiFi stack.
//
// Implementations must be cheap to call repeatedly; Status and IsAssociated
// are polled from the supervisor loop.
type Driver interface {
	// Activate powers the interface up (true) or down (false).
	Activate(on bool) error

	// Associate starts association with the given network. It returns once
	// the request is accepted, not when the link is up.
	Associate(ssid, password string) error

	// Disassociate drops the current association.
	Disassociate() error

	// Status reports the current association status.
	Status() (Status, error)

	// IPConfig reports the addressing assigned to the interface.
	IPConfig() (IPConfig, error)

	// IsAssociated is a non-blocking health check.
	IsAssociated() bool
}

// IPConfig is the addressing assigned to an interface.
type IPConfig struct {
	IP      string
	Netmask string
}

// Credentials identify the access point to associate with.
type Credentials struct {
	SSID     string
	Password string
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
