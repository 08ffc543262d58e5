package session

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte) error

// Dispatcher is the application callback run for every inbound message.
type Dispatcher = MessageHandler

// Client is the narrow interface to an MQTT client library.
//
// Implementations must deliver messages only from CheckForMessage, on the
// calling goroutine, through the handler set with SetMessageHandler.
type Client interface {
	// Connect makes a single connection attempt.
	Connect() error

	// Disconnect closes the connection.
	Disconnect() error

	// SetMessageHandler sets the callback invoked by CheckForMessage.
	SetMessageHandler(MessageHandler)

	// Subscribe subscribes to one topic and waits for the acknowledgement.
	Subscribe(topic string) error

	// CheckForMessage delivers at most one pending message without
	// blocking. It reports whether a message was delivered; the handler's
	// error is returned unchanged.
	CheckForMessage() (bool, error)
}

// Broker identifies the broker endpoint.
type Broker struct {
	Host     string
	Port     int
	ClientID string
}

// Credentials authenticate against the broker. Empty means anonymous.
type Credentials struct {
	Username string
	Password string
}

// ClientFactory creates a new, unconnected Client.
type ClientFactory func(broker Broker, creds Credentials) (Client, error)

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
