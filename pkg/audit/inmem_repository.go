package audit

import (
	"context"
	"sync"
)

// InMemRepository implements Repository in memory. Intended for tests.
type InMemRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemRepository creates a new in-memory audit repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

// Insert appends an audit entry
func (r *InMemRepository) Insert(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of all recorded entries
func (r *InMemRepository) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
