package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PinAttemptLimiter throttles PIN verification attempts per arrival token.
// A fixed window of maxAttempts is kept with INCR + EXPIRE; the counter is
// dropped on a successful verification so a legitimate retry after expiry
// starts clean.
type PinAttemptLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewPinAttemptLimiter returns limiter.
func NewPinAttemptLimiter(client *redis.Client, maxAttempts int, window time.Duration) *PinAttemptLimiter {
	return &PinAttemptLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *PinAttemptLimiter) key(token string) string {
	return fmt.Sprintf("perks:pin-attempts:%s", token)
}

// Allow registers an attempt and reports whether it is within the window
// budget. The first attempt in a window sets the expiry.
func (l *PinAttemptLimiter) Allow(ctx context.Context, token string) (bool, error) {
	key := l.key(token)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.maxAttempts), nil
}

// Reset clears the attempt counter after a successful verification.
func (l *PinAttemptLimiter) Reset(ctx context.Context, token string) error {
	return l.client.Del(ctx, l.key(token)).Err()
}
