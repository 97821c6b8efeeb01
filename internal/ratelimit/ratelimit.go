// Package ratelimit paces outbound tracker calls with one token bucket per key.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrStopped is returned by Wait once the limiter has been stopped.
var ErrStopped = errors.New("ratelimit: limiter stopped")

// KeyedRateLimiter hands out an independent token bucket per key, so reads
// and writes against the tracker are paced separately.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	stopped  bool
}

// New creates a limiter allowing rps requests per second per key with the
// given burst. A non-positive rps disables pacing.
func New(rps float64, burst int) *KeyedRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed right now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	l, ok := krl.get(key)
	return ok && l.Allow()
}

// Wait blocks until a request for key may proceed or ctx is done.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	l, ok := krl.get(key)
	if !ok {
		return ErrStopped
	}
	return l.Wait(ctx)
}

func (krl *KeyedRateLimiter) get(key string) (*rate.Limiter, bool) {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	if krl.stopped {
		return nil, false
	}
	l, ok := krl.limiters[key]
	if !ok {
		l = rate.NewLimiter(krl.limit, krl.burst)
		krl.limiters[key] = l
	}
	return l, true
}

// Stop releases every bucket. Later calls to Wait fail with ErrStopped and
// Allow reports false. Stop is idempotent.
func (krl *KeyedRateLimiter) Stop() {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	krl.stopped = true
	clear(krl.limiters)
}
