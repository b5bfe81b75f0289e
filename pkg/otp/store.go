// Package otp manages short-lived single-use numeric login codes.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeLength is the number of digits in a generated code
const CodeLength = 6

// DefaultTTL is used when no code lifetime is configured
const DefaultTTL = 10 * time.Minute

// Store keeps at most one live code per subject. Verification consumes the
// code on match and leaves it intact on mismatch so the subject can retry
// within the same TTL.
type Store interface {
	// Store saves a code for the subject, overwriting any prior live code
	Store(ctx context.Context, subject, code string, ttl time.Duration) error

	// Verify checks a submitted code. A match deletes the entry and returns
	// true; an absent or expired entry returns false; a mismatch returns
	// false and keeps the entry.
	Verify(ctx context.Context, subject, submittedCode string) (bool, error)

	// Clear removes any entry for the subject unconditionally
	Clear(ctx context.Context, subject string) error
}

// Generate produces a 6-digit numeric code drawn from a uniform range
func Generate() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate one-time code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
