package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter spaces successive calls at least interval apart. The interval
// is measured from the end of one call to the start of the next.
type RateLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time

	// Metrics
	calls  atomic.Uint64
	waited atomic.Int64 // total nanoseconds spent waiting
}

// NewRateLimiter creates a limiter. A non-positive interval disables waiting.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// IntervalFor returns the time covered by count samples at rate samples per
// second, truncated to nanoseconds.
func IntervalFor(count int, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(int64(count) * int64(time.Second) / int64(rate))
}

// Do waits out the rest of the interval since the previous call, then runs
// fn. It returns ctx.Err() without running fn if ctx ends while waiting.
func (l *RateLimiter) Do(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if wait := l.interval - time.Since(l.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			l.waited.Add(int64(wait))
		}
	}

	err := fn()
	l.last = time.Now()
	l.calls.Add(1)
	return err
}

// Interval returns the configured minimum spacing.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}

// Calls returns the number of completed calls.
func (l *RateLimiter) Calls() uint64 {
	return l.calls.Load()
}

// Waited returns the total time spent waiting.
func (l *RateLimiter) Waited() time.Duration {
	return time.Duration(l.waited.Load())
}
