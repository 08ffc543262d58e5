package registry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Binding maps one topic to a variable slot. Several topics may share a slot.
type Binding struct {
	Topic string
	Slot  string
}

// Update describes a slot write made by Dispatch.
type Update struct {
	Topic string
	Slot  string
	Value float64
	At    time.Time
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

// Registry is the static topic→slot mapping plus the store it writes to.
type Registry struct {
	bindings []Binding
	slotOf   map[string]string
	store    *Store
	logger   Logger
	now      func() time.Time

	mu            sync.RWMutex
	dropMalformed bool
	onUpdate      func(Update)
}

// New validates bindings and creates a Registry with an empty store.
// Binding order is preserved by Topics.
func New(bindings []Binding) (*Registry, error) {
	slotOf := make(map[string]string, len(bindings))
	var slots []string
	seenSlot := make(map[string]bool)

	for i, b := range bindings {
		if b.Topic == "" || b.Slot == "" {
			return nil, fmt.Errorf("%w: binding %d needs both topic and slot", ErrInvalidBinding, i)
		}
		if _, dup := slotOf[b.Topic]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, b.Topic)
		}
		slotOf[b.Topic] = b.Slot
		if !seenSlot[b.Slot] {
			seenSlot[b.Slot] = true
			slots = append(slots, b.Slot)
		}
	}

	return &Registry{
		bindings: append([]Binding(nil), bindings...),
		slotOf:   slotOf,
		store:    newStore(slots),
		logger:   noopLogger{},
		now:      time.Now,
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetDropMalformed controls what Dispatch does with a payload it cannot
// parse. When false (the default) it returns ErrInvalidPayload, which ends
// the session. When true the message is logged and dropped.
func (r *Registry) SetDropMalformed(drop bool) {
	r.mu.Lock()
	r.dropMalformed = drop
	r.mu.Unlock()
}

// SetOnUpdate registers a hook called after every successful slot write.
// The hook runs on the dispatching goroutine and must not block.
func (r *Registry) SetOnUpdate(fn func(Update)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Topics returns the bound topics in binding order.
func (r *Registry) Topics() []string {
	topics := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		topics[i] = b.Topic
	}
	return topics
}

// Bindings returns a copy of the bindings.
func (r *Registry) Bindings() []Binding {
	return append([]Binding(nil), r.bindings...)
}

// Store returns the variable store.
func (r *Registry) Store() *Store {
	return r.store
}

// Dispatch routes one inbound message to its slot.
//
// Unknown topics are ignored. A bound topic whose payload is not a number
// returns ErrInvalidPayload unless malformed payloads are being dropped.
// Dispatching the same message twice leaves the same value stored.
func (r *Registry) Dispatch(topic string, payload []byte) error {
	slot, ok := r.slotOf[topic]
	if !ok {
		r.logger.Debug("ignoring message on unbound topic", "topic", topic)
		return nil
	}

	value, err := parseValue(payload)
	if err != nil {
		r.mu.RLock()
		drop := r.dropMalformed
		r.mu.RUnlock()

		err = fmt.Errorf("%w: topic %s: %w", ErrInvalidPayload, topic, err)
		if drop {
			r.logger.Warn("dropping malformed payload", "topic", topic, "error", err)
			return nil
		}
		return err
	}

	at := r.now()
	r.store.set(slot, value, at)
	r.logger.Debug("slot updated", "topic", topic, "slot", slot, "value", value)

	r.mu.RLock()
	hook := r.onUpdate
	r.mu.RUnlock()
	if hook != nil {
		hook(Update{Topic: topic, Slot: slot, Value: value, At: at})
	}
	return nil
}

// parseValue decodes payload as UTF-8 text holding a decimal number.
// Surrounding whitespace is allowed.
func parseValue(payload []byte) (float64, error) {
	if !utf8.Valid(payload) {
		return 0, errors.New("payload is not UTF-8")
	}
	text := strings.TrimSpace(string(payload))
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", text, err)
	}
	return value, nil
}
