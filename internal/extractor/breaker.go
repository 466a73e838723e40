package extractor

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal: requests flow through
	CircuitOpen                         // Tripped: requests denied immediately
	CircuitHalfOpen                     // Probe: one request allowed to test recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive AI failures per model and stops calling a
// backend that keeps failing. After the cool-down one probe request is let
// through; its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time
}

type circuit struct {
	failures      []time.Time
	state         CircuitState
	openedAt      time.Time
	probeInFlight bool
}

// NewCircuitBreaker trips after threshold failures within window (defaults
// 5 and 60s) and stays open for cooldown (default 30s).
func NewCircuitBreaker(threshold int, window, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Check returns nil when a request for key may proceed.
func (cb *CircuitBreaker) Check(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		return nil
	}
	switch c.state {
	case CircuitOpen:
		if cb.now().Sub(c.openedAt) >= cb.cooldown {
			c.state = CircuitHalfOpen
			c.probeInFlight = true
			return nil
		}
		return fmt.Errorf("circuit open for %s after repeated failures", key)
	case CircuitHalfOpen:
		if c.probeInFlight {
			return fmt.Errorf("circuit half-open for %s: probe in progress", key)
		}
		c.probeInFlight = true
	}
	return nil
}

// RecordFailure counts a failed call. A failed probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}
	now := cb.now()

	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		c.openedAt = now
		c.probeInFlight = false
		return
	}

	cutoff := now.Add(-cb.window)
	kept := c.failures[:0]
	for _, t := range c.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.failures = append(kept, now)

	if len(c.failures) >= cb.threshold {
		c.state = CircuitOpen
		c.openedAt = now
	}
}

// RecordSuccess closes the circuit and forgets past failures.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, key)
}

// State returns the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}
