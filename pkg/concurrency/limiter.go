package concurrency

import (
	"context"
	"sync"
	"time"
)

// LimiterStats is a snapshot of limiter usage
type LimiterStats struct {
	Capacity int
	Active   int
	Peak     int
	Acquired int64
	// Waited is the time spent blocked in Acquire
	Waited time.Duration
}

// Limiter bounds the row chunks in flight. A runner shares one limiter
// between its runs, so that concurrent jobs do not oversubscribe the host.
type Limiter struct {
	slots chan struct{}

	mu    sync.Mutex
	stats LimiterStats
}

// NewLimiter creates a limiter with capacity slots, at least one
func NewLimiter(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		slots: make(chan struct{}, capacity),
		stats: LimiterStats{Capacity: capacity},
	}
}

// Acquire takes a slot, waiting until one is free or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.acquired(0)
		return nil
	default:
	}

	start := time.Now()
	select {
	case l.slots <- struct{}{}:
		l.acquired(time.Since(start))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without waiting
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.acquired(0)
		return true
	default:
		return false
	}
}

func (l *Limiter) acquired(waited time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Acquired++
	l.stats.Waited += waited
	l.stats.Active++
	if l.stats.Active > l.stats.Peak {
		l.stats.Peak = l.stats.Active
	}
}

// Release returns a slot. Releasing more than was acquired is a no-op.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
		l.mu.Lock()
		l.stats.Active--
		l.mu.Unlock()
	default:
	}
}

// Stats returns a snapshot of the usage
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
