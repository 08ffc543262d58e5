// Package mqtt provides the broker clients behind session.Client.
//
// Two implementations are available, selected by mqtt.protocol:
//   - "3.1.1": Client, built on github.com/eclipse/paho.mqtt.golang
//   - "5":     V5Client, built on github.com/eclipse/paho.golang
//
// # Delivery Model
//
// Both libraries deliver messages on their own goroutines. The clients
// push each message into a bounded inbox and CheckForMessage pops at most
// one per call, running the session's handler on the caller's goroutine.
// The variable store therefore has a single writer.
//
// Auto-reconnect is disabled. A lost connection is latched and returned by
// CheckForMessage as ErrConnectionLost once queued messages are drained;
// the supervisor then tears the cycle down and builds a new client.
//
// # Status Topic
//
// When mqtt.status_topic is set, clients configure a retained Last Will
// with an "offline" payload, publish a retained "online" payload after
// connecting and a graceful "offline" payload before disconnecting.
//
// # Usage
//
//	factory := mqtt.NewClientFactory(cfg.MQTT, logger)
//	sess := session.New(factory)
//	err := sess.Connect(session.Broker{Host: "broker.local", Port: 1883}, creds)
package mqtt
