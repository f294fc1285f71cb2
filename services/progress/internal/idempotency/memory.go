package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps claims in process; they are lost on restart and not
// shared between replicas.
type memoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	claimed map[string]time.Time
	checks  int
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{ttl: ttl, now: now, claimed: make(map[string]time.Time)}
}

func (s *memoryStore) Check(_ context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyID
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks++
	if s.checks%memorySweepAt == 0 {
		s.sweepLocked(now)
	}
	if at, ok := s.claimed[eventID]; ok && now.Sub(at) < s.ttl {
		return true, nil
	}
	s.claimed[eventID] = now
	return false, nil
}

func (s *memoryStore) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	delete(s.claimed, eventID)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) sweepLocked(now time.Time) {
	for id, at := range s.claimed {
		if now.Sub(at) >= s.ttl {
			delete(s.claimed, id)
		}
	}
}
