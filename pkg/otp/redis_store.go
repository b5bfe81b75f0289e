package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp"

var errCodeMismatch = errors.New("otp code mismatch")

// RedisStore implements Store on a shared Redis instance, so single-use and
// TTL guarantees hold across service instances. Consumption uses an
// optimistic WATCH transaction: the code is compared and deleted atomically,
// and a concurrent consume of the same key forces a retry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed OTP store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(subject string) string {
	return otpKeyPrefix + ":" + subject
}

// Store saves a code for the subject, overwriting any prior live code
func (s *RedisStore) Store(ctx context.Context, subject, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := s.client.Set(ctx, s.key(subject), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store one-time code: %w", err)
	}
	return nil
}

// Verify checks a submitted code, consuming it on match
func (s *RedisStore) Verify(ctx context.Context, subject, submittedCode string) (bool, error) {
	const maxRetries = 4
	key := s.key(subject)

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare([]byte(stored), []byte(submittedCode)) != 1 {
				return errCodeMismatch
			}

			// Delete inside the transaction so two concurrent verifications
			// cannot both consume the code
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, redis.Nil):
			// Absent or expired; expiry removal is Redis' own TTL
			return false, nil
		case errors.Is(err, errCodeMismatch):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, fmt.Errorf("failed to verify one-time code: %w", err)
		}
	}

	return false, errors.New("one-time code verification contended, retries exhausted")
}

// Clear removes any entry for the subject unconditionally
func (s *RedisStore) Clear(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("failed to clear one-time code: %w", err)
	}
	return nil
}
