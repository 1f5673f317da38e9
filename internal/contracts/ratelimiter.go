package contracts

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// InMemoryRateLimiter is a reference RateLimiter backed by one
// golang.org/x/time/rate.Limiter per key, created lazily on first use. It
// satisfies the RateLimiter contract for tests and single-process
// deployments; a multi-process deployment needs a shared store instead
// (e.g. a Redis-backed token bucket), which is outside this module's
// committed scope.
type InMemoryRateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewInMemoryRateLimiter builds a RateLimiter permitting rps sustained
// requests per second per key, with bursts up to burst above that rate.
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may proceed right now, never blocking.
func (l *InMemoryRateLimiter) Allow(_ context.Context, key string) bool {
	return l.limiterFor(key).Allow()
}

func (l *InMemoryRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}
