package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/session"
)

// Client is an MQTT 3.1.1 session client built on paho.mqtt.golang.
//
// It implements session.Client. One Client serves one connection; after a
// disconnect or connection loss the supervisor creates a new one.
//
// Thread Safety:
//   - paho delivers messages on its own goroutines; they only touch the inbox.
//   - Connect, Subscribe, CheckForMessage and Disconnect are called from the
//     supervisor goroutine.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	inbox   *inbox

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

var _ session.Client = (*Client)(nil)

// NewClient creates an unconnected MQTT 3.1.1 client.
//
// Parameters:
//   - cfg: MQTT configuration with the resolved broker address
//   - username, password: credentials; empty username connects anonymously
//   - logger: optional, may be nil
func NewClient(cfg config.MQTTConfig, username, password string, logger Logger) *Client {
	c := &Client{
		cfg:    cfg,
		inbox:  newInbox(inboxSize(cfg), logger),
		logger: logger,
	}

	opts := buildClientOptions(cfg, username, password)
	configureLWT(opts, cfg)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.options = opts
	c.client = pahomqtt.NewClient(opts)
	return c
}

// Connect makes a single connection attempt and publishes the online status.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))
	return nil
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.inbox.markLost(err)
	if c.logger != nil {
		c.logger.Warn("MQTT connection lost", "error", err)
	}
}

// SetMessageHandler sets the handler CheckForMessage delivers to.
func (c *Client) SetMessageHandler(h session.MessageHandler) {
	c.inbox.setHandler(h)
}

// Subscribe subscribes to one topic and waits for the SUBACK.
func (c *Client) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, byte(c.cfg.QoS), func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.inbox.push(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code >= subackFailure {
			return fmt.Errorf("%w: %s: broker returned 0x%02x", ErrSubscribeFailed, topic, code)
		}
	}
	return nil
}

// CheckForMessage delivers at most one pending message without blocking.
// After the connection is lost it returns ErrConnectionLost once the
// queue is empty.
func (c *Client) CheckForMessage() (bool, error) {
	return c.inbox.check()
}

// Disconnect publishes the graceful offline status and closes the
// connection.
func (c *Client) Disconnect() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID, reasonGraceful))
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Dropped returns the number of messages discarded because the inbox was full.
// The session reads it on teardown.
func (c *Client) Dropped() int {
	return c.inbox.droppedCount()
}

func (c *Client) publishStatus(payload string) {
	if c.cfg.StatusTopic == "" {
		return
	}
	if err := c.Publish(c.cfg.StatusTopic, []byte(payload), statusQoS, true); err != nil && c.logger != nil {
		c.logger.Warn("publishing status failed", "topic", c.cfg.StatusTopic, "error", err)
	}
}
