package extractor

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a global and a per-caller request rate on AI calls
// using token buckets.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	callers   map[string]*rate.Limiter
	perCaller rate.Limit
	burst     int
}

// NewRateLimiter creates a limiter. globalRPM caps all calls per minute and
// perCallerRPM caps each caller; zero disables that bucket.
func NewRateLimiter(globalRPM, perCallerRPM int) *RateLimiter {
	rl := &RateLimiter{callers: make(map[string]*rate.Limiter)}
	if globalRPM > 0 {
		rl.global = rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), max(globalRPM/6, 1))
	}
	if perCallerRPM > 0 {
		rl.perCaller = rate.Limit(float64(perCallerRPM) / 60.0)
		rl.burst = max(perCallerRPM/6, 1)
	}
	return rl
}

// Allow reports whether a call from caller may proceed now.
func (rl *RateLimiter) Allow(caller string) bool {
	if rl == nil {
		return true
	}
	if rl.global != nil && !rl.global.Allow() {
		return false
	}
	if rl.perCaller == 0 {
		return true
	}
	rl.mu.Lock()
	limiter, ok := rl.callers[caller]
	if !ok {
		limiter = rate.NewLimiter(rl.perCaller, rl.burst)
		rl.callers[caller] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
