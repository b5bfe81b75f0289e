package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// InMemLimiter implements Limiter with a mutex-guarded map of windows.
// Increment-and-compare runs under the lock, so concurrent requests against
// the same key cannot race past the limit. Counts are per process; use the
// Redis limiter when running more than one instance.
type InMemLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	config  Config
	done    chan struct{}
	once    sync.Once

	now func() time.Time
}

// NewInMemLimiter creates a new in-memory fixed-window limiter
func NewInMemLimiter(config Config) *InMemLimiter {
	l := &InMemLimiter{
		windows: make(map[string]window),
		config:  config,
		done:    make(chan struct{}),
		now:     time.Now,
	}

	// Expired windows are also dropped lazily on access; the sweeper just
	// bounds memory for keys that never come back.
	go l.cleanup()

	return l
}

// Close stops the background sweeper. Safe to call more than once; Allow
// keeps working after Close, only the periodic sweep stops.
func (l *InMemLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

// Allow records a request for the key and checks it against the limit
func (l *InMemLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= l.config.Window {
		w = window{count: 1, start: now}
		l.windows[key] = w
		return Decision{
			Allowed:   true,
			Limit:     l.config.Limit,
			Remaining: l.config.Limit - 1,
			Reset:     w.start.Add(l.config.Window),
		}, nil
	}

	w.count++
	l.windows[key] = w

	reset := w.start.Add(l.config.Window)
	if w.count > l.config.Limit {
		return Decision{
			Allowed:    false,
			Limit:      l.config.Limit,
			Remaining:  0,
			RetryAfter: reset.Sub(now),
			Reset:      reset,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     l.config.Limit,
		Remaining: l.config.Limit - w.count,
		Reset:     reset,
	}, nil
}

// cleanup periodically removes elapsed windows
func (l *InMemLimiter) cleanup() {
	interval := l.config.Window
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.Sub(w.start) >= l.config.Window {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
