package concurrency

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by Allow while the breaker rejects work
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState is the position of a Breaker
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerProbing lets work through after the cooldown; one failure
	// reopens the breaker, ProbeSuccesses successes close it
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	}
	return "unknown"
}

// ProbeSuccesses is the number of successes that close a probing breaker
const ProbeSuccesses = 3

// Breaker opens after Threshold consecutive failures. The runner feeds it
// row outcomes and aborts a run once it opens; the partition publisher
// uses a cooldown so that an unreachable server fails fast.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	total     int64
	openedAt  time.Time
}

// NewBreaker creates a breaker. A zero cooldown keeps it open once tripped.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 10
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether work may proceed
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return nil
	}
	if b.cooldown > 0 && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerProbing
		b.successes = 0
		return nil
	}
	return ErrBreakerOpen
}

// Success records a successful unit of work
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == BreakerProbing {
		b.successes++
		if b.successes >= ProbeSuccesses {
			b.state = BreakerClosed
		}
	}
}

// Failure records a failed unit of work. It returns true for the one call
// that opens the breaker.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.total++
	if b.state == BreakerProbing || (b.state == BreakerClosed && b.failures >= b.threshold) {
		b.state = BreakerOpen
		b.openedAt = b.now()
		return true
	}
	return false
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the failures since the last success
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// TotalFailures returns every failure recorded
func (b *Breaker) TotalFailures() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Reset closes the breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
}
