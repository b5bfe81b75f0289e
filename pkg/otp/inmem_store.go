package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type inMemEntry struct {
	code      string
	expiresAt time.Time
}

// InMemStore implements Store with a mutex-guarded map. Single-use and
// overwrite semantics hold within one process only; deployments with more
// than one instance must use the Redis store instead.
type InMemStore struct {
	mu      sync.Mutex
	entries map[string]inMemEntry

	now func() time.Time
}

// NewInMemStore creates a new in-memory OTP store
func NewInMemStore() *InMemStore {
	return &InMemStore{
		entries: make(map[string]inMemEntry),
		now:     time.Now,
	}
}

// Store saves a code for the subject, overwriting any prior live code
func (s *InMemStore) Store(ctx context.Context, subject, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[subject] = inMemEntry{
		code:      code,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Verify checks a submitted code, consuming it on match
func (s *InMemStore) Verify(ctx context.Context, subject, submittedCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[subject]
	if !ok {
		return false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, subject)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(submittedCode)) != 1 {
		return false, nil
	}

	delete(s.entries, subject)
	return true, nil
}

// Clear removes any entry for the subject unconditionally
func (s *InMemStore) Clear(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, subject)
	return nil
}
