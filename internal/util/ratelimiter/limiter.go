package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces out actions so that at most one happens per interval.
// A zero interval never limits. Safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
}

// New creates a new rate limiter with the specified interval
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
	}
}

// Allow reports whether an action may happen now. When it may, the current
// time is recorded; otherwise the remaining wait is returned.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastAllowed)

	if l.lastAllowed.IsZero() || elapsed >= l.interval {
		l.lastAllowed = now
		return true, 0
	}

	return false, l.interval - elapsed
}

// Wait blocks until an action is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		allowed, wait := l.Allow()
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

