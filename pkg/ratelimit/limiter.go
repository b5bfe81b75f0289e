// Package ratelimit counts requests per client key inside a rolling window
// and rejects once the configured threshold is exceeded.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate limit check. RetryAfter and Reset are
// only meaningful on rejection; Remaining never goes below zero.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

// Limiter gates requests per key. Distinct routes use independent Limiter
// instances with independent windows.
type Limiter interface {
	// Allow records a request for the key and reports whether it is within
	// the window's limit
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config holds the fixed-window settings for one route class
type Config struct {
	// Limit is the maximum number of requests per window
	Limit int

	// Window is the length of the counting window
	Window time.Duration
}

// DefaultLoginConfig returns the default login brute-force limit
func DefaultLoginConfig() Config {
	return Config{
		Limit:  5,
		Window: 60 * time.Second,
	}
}
