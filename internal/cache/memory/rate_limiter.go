package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// waitPollInterval matches the Redis implementation's polling cadence.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with per-key sliding windows
// of request timestamps. Limits bind only within this process.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewRateLimiter creates an empty in-memory rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string][]time.Time)}
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. It returns true if the request is allowed
// (and the request is counted), or false if the limit has been reached.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.windows[key][:0]
	for _, ts := range rl.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		rl.windows[key] = kept
		return false, nil
	}

	rl.windows[key] = append(kept, now)
	return true, nil
}

// Wait blocks until a request for the given key is allowed under a default
// limit of 1 request per second, polling at a fixed interval. It returns
// an error if the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
