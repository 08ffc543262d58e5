package mqtt

import (
	"fmt"
	"sync"

	"github.com/nerrad567/sensorlink/internal/session"
)

type inboundMessage struct {
	topic   string
	payload []byte
}

// inbox decouples the library's delivery goroutines from the poller.
//
// Library callbacks push into a bounded queue; CheckForMessage pops at
// most one message per call and runs the handler on the caller's
// goroutine. A full queue drops the new message. Connection loss is
// latched and reported once the queue is drained.
type inbox struct {
	queue  chan inboundMessage
	logger Logger

	mu      sync.Mutex
	handler session.MessageHandler
	lost    error
	dropped int
}

func newInbox(size int, logger Logger) *inbox {
	return &inbox{
		queue:  make(chan inboundMessage, size),
		logger: logger,
	}
}

func (in *inbox) setHandler(h session.MessageHandler) {
	in.mu.Lock()
	in.handler = h
	in.mu.Unlock()
}

// push queues a copy of payload. It never blocks.
func (in *inbox) push(topic string, payload []byte) {
	msg := inboundMessage{topic: topic, payload: append([]byte(nil), payload...)}

	select {
	case in.queue <- msg:
	default:
		in.mu.Lock()
		in.dropped++
		dropped := in.dropped
		in.mu.Unlock()
		if in.logger != nil {
			in.logger.Warn("MQTT inbox full, dropping message",
				"topic", topic,
				"dropped_total", dropped,
			)
		}
	}
}

// markLost records the first connection-loss cause.
func (in *inbox) markLost(cause error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.lost == nil {
		in.lost = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	}
}

// check delivers one queued message, or reports a latched loss.
func (in *inbox) check() (bool, error) {
	select {
	case msg := <-in.queue:
		in.mu.Lock()
		h := in.handler
		in.mu.Unlock()
		if h == nil {
			return true, nil
		}
		return true, h(msg.topic, msg.payload)
	default:
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return false, in.lost
}

// droppedCount returns the number of messages discarded because the queue was full.
func (in *inbox) droppedCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}
