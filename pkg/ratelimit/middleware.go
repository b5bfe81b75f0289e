package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware applies a Limiter to incoming HTTP requests, keyed by client
// address, and surfaces the standard rate limit headers.
type Middleware struct {
	limiter        Limiter
	includeHeaders bool
	keyFunc        func(r *http.Request) string
}

// MiddlewareOption configures a Middleware
type MiddlewareOption func(*Middleware)

// WithKeyFunc overrides how the client key is derived from a request
func WithKeyFunc(keyFunc func(r *http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.keyFunc = keyFunc
	}
}

// WithHeaders controls whether X-RateLimit headers are written
func WithHeaders(include bool) MiddlewareOption {
	return func(m *Middleware) {
		m.includeHeaders = include
	}
}

// NewMiddleware creates a rate limiting middleware around the given limiter
func NewMiddleware(limiter Limiter, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		limiter:        limiter,
		includeHeaders: true,
		keyFunc:        ClientIP,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an http.Handler with the rate limit gate
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)

		decision, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// The limiter store being unreachable must not take the whole
			// API down with it
			slog.Error("Rate limiter unavailable, allowing request", "err", err)
			next.ServeHTTP(w, r)
			return
		}

		if m.includeHeaders {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))
		}

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client network address from a request, preferring
// the leftmost X-Forwarded-For entry.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
