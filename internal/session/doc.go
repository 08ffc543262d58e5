// Package session manages one MQTT session per supervisor cycle.
//
// A Session wraps a Client created fresh for every Connect. Inbound
// messages are not pushed to the application: PollOnce performs one
// non-blocking check and, when a message is pending, runs the dispatcher
// on the caller's goroutine before returning. This keeps the variable
// store single-writer and lets dispatch errors end the session.
package session
