package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/agent/core"
)

const (
	// DefaultRetention covers the challenge freshness window plus the tolerated clock skew
	DefaultRetention = 11 * time.Minute

	// DefaultSweepInterval bounds how often records are garbage collected
	DefaultSweepInterval = time.Hour
)

// MemoryStore is an in-memory replay guard for a single server instance
type MemoryStore struct {
	mu            sync.Mutex
	seen          map[string]time.Time
	retention     time.Duration
	sweepInterval time.Duration
	lastSweep     time.Time
}

// NewMemoryStore creates a new in-memory replay guard
func NewMemoryStore(retention, sweepInterval time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &MemoryStore{
		seen:          make(map[string]time.Time),
		retention:     retention,
		sweepInterval: sweepInterval,
	}
}

// Seen reports whether a nonce is currently recorded
func (s *MemoryStore) Seen(ctx context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[nonce]
	return ok, nil
}

// Record stores a nonce, keeping the first sighting if it is already present
func (s *MemoryStore) Record(ctx context.Context, nonce string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[nonce]; !ok {
		s.seen[nonce] = now
	}
	s.maybeSweepLocked(now)
	return nil
}

// Claim records a nonce unless it was seen before
func (s *MemoryStore) Claim(ctx context.Context, nonce string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[nonce]; ok {
		return core.ErrNonceReused
	}
	s.seen[nonce] = now
	s.maybeSweepLocked(now)
	return nil
}

// Sweep removes records older than the retention period
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(now)
}

// Len returns the number of recorded nonces
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.seen)
}

// maybeSweepLocked sweeps when the sweep interval has elapsed. Caller must hold mu.
func (s *MemoryStore) maybeSweepLocked(now time.Time) {
	if s.lastSweep.IsZero() {
		s.lastSweep = now
		return
	}
	if now.Sub(s.lastSweep) > s.sweepInterval {
		s.sweepLocked(now)
	}
}

// sweepLocked deletes expired records. Caller must hold mu.
func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for nonce, firstSeen := range s.seen {
		if now.Sub(firstSeen) > s.retention {
			delete(s.seen, nonce)
			removed++
		}
	}
	s.lastSweep = now
	return removed
}
