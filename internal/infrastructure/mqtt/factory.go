package mqtt

import (
	"fmt"
	"time"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/session"
)

// NewClientFactory returns a session.ClientFactory that builds a fresh
// client for the configured protocol on every call.
//
// The broker address and credentials passed by the session override the
// ones in cfg. When cfg.Auth.JWTSecret is set, the username is replaced by
// a token minted at call time.
func NewClientFactory(cfg config.MQTTConfig, logger Logger) session.ClientFactory {
	return func(broker session.Broker, creds session.Credentials) (session.Client, error) {
		settings := cfg
		settings.Broker.Host = broker.Host
		settings.Broker.Port = broker.Port
		if broker.ClientID != "" {
			settings.Broker.ClientID = broker.ClientID
		}

		username := creds.Username
		if cfg.Auth.JWTSecret != "" {
			ttl := time.Duration(cfg.Auth.JWTTTL) * time.Second
			token, err := GenerateToken(cfg.Auth.JWTSecret, settings.Broker.ClientID, ttl, time.Now())
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
			}
			username = token
		}

		switch settings.Protocol {
		case "", config.MQTTProtocol311:
			return NewClient(settings, username, creds.Password, logger), nil
		case config.MQTTProtocol5:
			return NewV5Client(settings, username, creds.Password, logger), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, settings.Protocol)
		}
	}
}
