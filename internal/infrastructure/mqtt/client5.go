package mqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/session"
)

// Dialer opens the network connection for an MQTT 5 client.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// V5Client is an MQTT 5 session client built on paho.golang.
//
// paho.golang has no reconnect logic of its own, which matches the
// one-connection-per-cycle model: a client error or server DISCONNECT is
// latched and surfaced through CheckForMessage.
type V5Client struct {
	cfg      config.MQTTConfig
	username string
	password string
	dial     Dialer
	inbox    *inbox
	logger   Logger

	client *paho.Client
	conn   net.Conn

	connected bool
	connMu    sync.RWMutex
}

var _ session.Client = (*V5Client)(nil)

// NewV5Client creates an unconnected MQTT 5 client.
func NewV5Client(cfg config.MQTTConfig, username, password string, logger Logger) *V5Client {
	var d net.Dialer
	return &V5Client{
		cfg:      cfg,
		username: username,
		password: password,
		dial:     d.DialContext,
		inbox:    newInbox(inboxSize(cfg), logger),
		logger:   logger,
	}
}

// SetDialer replaces the TCP dialer.
func (c *V5Client) SetDialer(d Dialer) {
	c.dial = d
}

// Connect dials the broker and performs the MQTT 5 handshake.
func (c *V5Client) Connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	addr := net.JoinHostPort(c.cfg.Broker.Host, strconv.Itoa(c.cfg.Broker.Port))
	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ErrConnectionFailed, addr, err)
	}

	router := paho.NewStandardRouter()
	router.RegisterHandler("#", func(p *paho.Publish) {
		c.inbox.push(p.Topic, p.Payload)
	})

	c.client = paho.NewClient(paho.ClientConfig{
		ClientID: c.cfg.Broker.ClientID,
		Conn:     conn,
		Router:   router,
		OnClientError: func(err error) {
			c.handleConnectionLost(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.handleConnectionLost(fmt.Errorf("server disconnect, reason 0x%02x", d.ReasonCode))
		},
	})
	c.conn = conn

	ca, err := c.client.Connect(ctx, c.connectPacket())
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if ca.ReasonCode != 0 {
		_ = conn.Close()
		return fmt.Errorf("%w: broker returned 0x%02x", ErrConnectionFailed, ca.ReasonCode)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))
	return nil
}

func (c *V5Client) connectPacket() *paho.Connect {
	cp := &paho.Connect{
		ClientID:   c.cfg.Broker.ClientID,
		KeepAlive:  uint16(keepAlive(c.cfg).Seconds()),
		CleanStart: true,
	}
	if c.username != "" {
		cp.Username = c.username
		cp.UsernameFlag = true
	}
	if c.password != "" {
		cp.Password = []byte(c.password)
		cp.PasswordFlag = true
	}
	if c.cfg.StatusTopic != "" {
		cp.WillMessage = &paho.WillMessage{
			Retain:  true,
			QoS:     statusQoS,
			Topic:   c.cfg.StatusTopic,
			Payload: []byte(buildOfflinePayload(c.cfg.Broker.ClientID, reasonUnexpected)),
		}
	}
	return cp
}

func (c *V5Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.inbox.markLost(err)
	if c.logger != nil {
		c.logger.Warn("MQTT connection lost", "error", err)
	}
}

// SetMessageHandler sets the handler CheckForMessage delivers to.
func (c *V5Client) SetMessageHandler(h session.MessageHandler) {
	c.inbox.setHandler(h)
}

// Subscribe subscribes to one topic and waits for the SUBACK.
func (c *V5Client) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSubscribeTimeout)
	defer cancel()

	sa, err := c.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(c.cfg.QoS)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	if sa != nil && len(sa.Reasons) > 0 && sa.Reasons[0] >= subackFailure {
		return fmt.Errorf("%w: %s: broker returned 0x%02x", ErrSubscribeFailed, topic, sa.Reasons[0])
	}
	return nil
}

// CheckForMessage delivers at most one pending message without blocking.
func (c *V5Client) CheckForMessage() (bool, error) {
	return c.inbox.check()
}

// Publish sends a message to the specified MQTT topic.
func (c *V5Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if _, err := c.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retained,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Disconnect publishes the graceful offline status, sends DISCONNECT and
// closes the connection.
func (c *V5Client) Disconnect() error {
	if c.client == nil {
		return nil
	}

	wasConnected := c.IsConnected()
	if wasConnected {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID, reasonGraceful))
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	var err error
	if wasConnected {
		err = c.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *V5Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Dropped returns the number of messages discarded because the inbox was full.
func (c *V5Client) Dropped() int {
	return c.inbox.droppedCount()
}

func (c *V5Client) publishStatus(payload string) {
	if c.cfg.StatusTopic == "" {
		return
	}
	if err := c.Publish(c.cfg.StatusTopic, []byte(payload), statusQoS, true); err != nil && c.logger != nil {
		c.logger.Warn("publishing status failed", "topic", c.cfg.StatusTopic, "error", err)
	}
}
