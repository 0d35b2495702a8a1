// Package memory is the single-process verification store. Entries live only as
// long as the process does.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-contact/internal/domain"
)

// Store is a mutex-guarded map of identity to entry. Entries are copied on the way
// in and out so callers never share memory with the map.
type Store struct {
	mu      sync.Mutex
	entries map[string]domain.VerificationEntry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]domain.VerificationEntry)}
}

func (s *Store) Put(_ context.Context, e *domain.VerificationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Identity] = *e
	return nil
}

func (s *Store) Get(_ context.Context, identity string) (*domain.VerificationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok {
		return nil, fmt.Errorf("verification entry: %w", domain.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) Remove(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}

func (s *Store) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Consume(_ context.Context, identity, challengeID string, verifiedUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok || e.ChallengeID != challengeID || e.Consumed {
		return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
	}
	e.Consumed = true
	e.ExpiresAt = verifiedUntil
	s.entries[identity] = e
	return nil
}

// RemoveIf deletes the entry only while it still carries challengeID.
func (s *Store) RemoveIf(_ context.Context, identity, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok || e.ChallengeID != challengeID {
		return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
	}
	delete(s.entries, identity)
	return nil
}

// SetClaimed flips the claim on a consumed entry that still carries challengeID.
func (s *Store) SetClaimed(_ context.Context, identity, challengeID string, claimed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok || e.ChallengeID != challengeID || !e.Consumed || e.Claimed == claimed {
		return fmt.Errorf("challenge %s not claimable: %w", challengeID, domain.ErrNotFound)
	}
	e.Claimed = claimed
	s.entries[identity] = e
	return nil
}

// Len reports how many entries are held, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Ping always succeeds; it lets the readiness check treat every backend alike.
func (s *Store) Ping(context.Context) error { return nil }
