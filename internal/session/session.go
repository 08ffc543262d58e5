package session

import (
	"errors"
	"fmt"
)

// Session is one broker session.
//
// A Session is not safe for concurrent use; the supervisor drives it from
// a single goroutine.
type Session struct {
	factory ClientFactory
	logger  Logger

	client     Client
	connected  bool
	subscribed []string
	dispatcher Dispatcher

	// dispatchErr carries the dispatcher's error out of CheckForMessage so
	// it can be told apart from transport errors.
	dispatchErr error
	received    int
	dropped     int
}

// dropCounter is implemented by clients with a bounded inbox.
type dropCounter interface {
	Dropped() int
}

// New creates a Session that builds clients with factory.
func New(factory ClientFactory) *Session {
	return &Session{factory: factory, logger: noopLogger{}}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Connect creates a fresh client and makes a single connection attempt.
// There is no internal retry.
func (s *Session) Connect(broker Broker, creds Credentials) error {
	s.logger.Info("connecting to MQTT broker",
		"host", broker.Host,
		"port", broker.Port,
		"client_id", broker.ClientID,
	)

	client, err := s.factory(broker, creds)
	if err != nil {
		return fmt.Errorf("%w: creating client: %w", ErrConnectFailed, err)
	}
	if err := client.Connect(); err != nil {
		s.logger.Warn("MQTT connect failed", "host", broker.Host, "error", err)
		// A timed-out attempt may still complete in the background.
		if dErr := client.Disconnect(); dErr != nil {
			s.logger.Debug("MQTT disconnect after failed connect", "error", dErr)
		}
		return fmt.Errorf("%w: %s:%d: %w", ErrConnectFailed, broker.Host, broker.Port, err)
	}

	s.client = client
	s.connected = true
	s.subscribed = nil
	s.logger.Info("connected to MQTT broker", "host", broker.Host)
	return nil
}

// Subscribe registers dispatcher and subscribes to topics in order.
//
// The first rejected topic aborts the remaining subscriptions. Topics
// subscribed before it are not unsubscribed; Subscribed reports them.
func (s *Session) Subscribe(topics []string, dispatcher Dispatcher) error {
	if !s.connected {
		return ErrNotConnected
	}

	s.dispatcher = dispatcher
	s.client.SetMessageHandler(s.deliver)

	for _, topic := range topics {
		if err := s.client.Subscribe(topic); err != nil {
			s.logger.Warn("subscribe failed", "topic", topic, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		}
		s.subscribed = append(s.subscribed, topic)
		s.logger.Info("subscribed", "topic", topic)
	}
	return nil
}

// deliver runs the dispatcher and stashes its error.
func (s *Session) deliver(topic string, payload []byte) error {
	s.received++
	s.logger.Debug("message received", "topic", topic, "bytes", len(payload))

	if s.dispatcher == nil {
		return nil
	}
	if err := s.dispatcher(topic, payload); err != nil {
		s.dispatchErr = err
		return err
	}
	return nil
}

// PollOnce checks once for a pending message and dispatches it before
// returning. It reports whether a message was handled.
//
// A dispatcher error is returned as-is. Any other error is wrapped in
// ErrTransport.
func (s *Session) PollOnce() (bool, error) {
	if !s.connected {
		return false, ErrNotConnected
	}

	s.dispatchErr = nil
	handled, err := s.client.CheckForMessage()
	if err == nil {
		return handled, nil
	}

	if dErr := s.dispatchErr; dErr != nil && errors.Is(err, dErr) {
		s.dispatchErr = nil
		return handled, dErr
	}
	return handled, fmt.Errorf("%w: %w", ErrTransport, err)
}

// Disconnect closes the client. Errors are logged and suppressed.
// It is safe to call more than once.
func (s *Session) Disconnect() {
	if s.client == nil {
		return
	}

	if dc, ok := s.client.(dropCounter); ok {
		s.dropped = dc.Dropped()
		if s.dropped > 0 {
			s.logger.Warn("inbound messages dropped, inbox was full", "dropped", s.dropped)
		}
	}

	if err := s.client.Disconnect(); err != nil {
		s.logger.Debug("MQTT disconnect failed", "error", err)
	}
	s.client = nil
	s.connected = false
	s.logger.Info("disconnected from MQTT broker")
}

// Connected reports whether Connect succeeded and Disconnect has not run.
func (s *Session) Connected() bool {
	return s.connected
}

// Subscribed returns the topics subscribed so far, in order.
func (s *Session) Subscribed() []string {
	return append([]string(nil), s.subscribed...)
}

// Received returns the number of messages delivered in this session.
func (s *Session) Received() int {
	return s.received
}

// Dropped returns how many inbound messages the client discarded because
// its inbox was full. It is read when the session disconnects.
func (s *Session) Dropped() int {
	return s.dropped
}
