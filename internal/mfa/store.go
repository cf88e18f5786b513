// Package mfa runs the second-factor leg of a login: a redirect challenge
// to an external Duo-style provider, or an enrolled TOTP code.
package mfa

import (
	"context"
	"sync"
	"time"
)

// challengeTTL bounds how long a pending challenge may wait for its callback.
const challengeTTL = 5 * time.Minute

// PendingChallenge is one in-flight redirect handshake keyed by its state
// token.
type PendingChallenge struct {
	UserID    uint64    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChallengeStore keeps pending challenges with a TTL. TakeIfPresent must be
// atomic take-and-delete so a state token resolves at most once.
type ChallengeStore interface {
	Put(ctx context.Context, state string, challenge PendingChallenge, ttl time.Duration) error
	TakeIfPresent(ctx context.Context, state string) (PendingChallenge, bool, error)
}

// MemoryStore is the single-instance ChallengeStore. Multi-instance
// deployments need the Redis store so callbacks survive failover.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

type memoryEntry struct {
	challenge PendingChallenge
	expiresAt time.Time
}

// NewMemoryStore constructs an in-process ChallengeStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

// Put stores the challenge, replacing any previous entry for the state.
func (s *MemoryStore) Put(_ context.Context, state string, challenge PendingChallenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = challengeTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[state] = memoryEntry{
		challenge: challenge,
		expiresAt: s.nowFn().Add(ttl),
	}
	return nil
}

// TakeIfPresent removes and returns the challenge for the state. Expired
// entries report absent, indistinguishable from never-stored ones.
func (s *MemoryStore) TakeIfPresent(_ context.Context, state string) (PendingChallenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return PendingChallenge{}, false, nil
	}
	delete(s.entries, state)
	if s.nowFn().After(entry.expiresAt) {
		return PendingChallenge{}, false, nil
	}
	return entry.challenge, true, nil
}

// sweepLocked drops expired entries so abandoned logins do not accumulate.
func (s *MemoryStore) sweepLocked() {
	now := s.nowFn()
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
