package registry

import (
	"sync"
	"time"
)

// Reading is the latest value held for a slot.
type Reading struct {
	Value     float64
	Valid     bool // false until the first message arrives
	UpdatedAt time.Time
}

// Store holds one Reading per slot.
//
// Every slot named by a binding has exactly one entry, created empty.
type Store struct {
	mu    sync.RWMutex
	slots map[string]Reading
}

func newStore(slots []string) *Store {
	s := &Store{slots: make(map[string]Reading, len(slots))}
	for _, slot := range slots {
		s.slots[slot] = Reading{}
	}
	return s
}

// Get returns the slot value and whether one has been received.
// Unknown slots report false.
func (s *Store) Get(slot string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.slots[slot]
	return r.Value, r.Valid
}

// Reading returns the full reading for a slot.
func (s *Store) Reading(slot string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.slots[slot]
	return r, ok
}

// Snapshot returns a copy of every slot.
func (s *Store) Snapshot() map[string]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Reading, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// Len returns the number of slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

func (s *Store) set(slot string, value float64, at time.Time) {
	s.mu.Lock()
	s.slots[slot] = Reading{Value: value, Valid: true, UpdatedAt: at}
	s.mu.Unlock()
}
