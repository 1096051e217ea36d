package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound OpenSky queries with a token bucket shared by
// every map session, so many open tabs still look like one polite client.
type RateLimiter struct {
	limiter    *rate.Limiter
	perSecond  float64
	burstSize  int
	mu         sync.RWMutex
	allowed    int64
	rejected   int64 // gave up waiting
	waitedNano int64
}

// NewRateLimiter creates a limiter allowing perSecond queries with the given burst.
func NewRateLimiter(perSecond float64, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burstSize),
		perSecond: perSecond,
		burstSize: burstSize,
	}
}

// Wait blocks until a query may go out or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := rl.limiter.Wait(ctx); err != nil {
		rl.mu.Lock()
		rl.rejected++
		rl.mu.Unlock()
		return err
	}

	rl.mu.Lock()
	rl.allowed++
	rl.waitedNano += time.Since(start).Nanoseconds()
	rl.mu.Unlock()
	return nil
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	PerSecond float64       `json:"per_second"`
	Burst     int           `json:"burst"`
	Allowed   int64         `json:"allowed"`
	Rejected  int64         `json:"rejected"`
	Waited    time.Duration `json:"waited_ns"`
}

// Stats reports the configured rate and how queries have fared so far.
func (rl *RateLimiter) Stats() Stats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return Stats{
		PerSecond: rl.perSecond,
		Burst:     rl.burstSize,
		Allowed:   rl.allowed,
		Rejected:  rl.rejected,
		Waited:    time.Duration(rl.waitedNano),
	}
}
