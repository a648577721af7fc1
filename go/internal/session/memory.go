package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore keeps markers in process memory. Suitable for development and
// tests; a restart forgets every cooldown.
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	markers map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		markers: make(map[string]time.Time),
	}
}

// Persist records a send at the current clock time. Meta is accepted for
// interface parity but not retained.
func (s *MemoryStore) Persist(ctx context.Context, identifier string, meta Meta) (time.Time, error) {
	now := s.clock.Now()
	s.mu.Lock()
	s.markers[identifier] = now
	s.mu.Unlock()
	return now, nil
}

// Lookup returns the marker for identifier, or nil if none exists.
func (s *MemoryStore) Lookup(ctx context.Context, identifier string) (*Marker, error) {
	s.mu.RLock()
	sentAt, ok := s.markers[identifier]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &Marker{Identifier: identifier, SentAt: sentAt}, nil
}

// Clear removes the marker for identifier. Clearing an absent marker is not
// an error.
func (s *MemoryStore) Clear(ctx context.Context, identifier string) error {
	s.mu.Lock()
	delete(s.markers, identifier)
	s.mu.Unlock()
	return nil
}

// Cleanup drops markers older than maxAge and returns how many it removed.
func (s *MemoryStore) Cleanup(maxAge time.Duration) int {
	cutoff := s.clock.Now().Add(-maxAge)
	removed := 0
	s.mu.Lock()
	for id, sentAt := range s.markers {
		if sentAt.Before(cutoff) {
			delete(s.markers, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
