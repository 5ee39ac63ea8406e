// Package ratelimit caps outbound generation calls over a sliding window.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter allows at most maxCalls Enforce completions within any trailing
// interval. All callers share one window.
type Limiter struct {
	maxCalls int
	interval time.Duration
	calls    []time.Time
	mu       sync.Mutex

	now func() time.Time
}

func NewLimiter(maxCalls int, interval time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	return &Limiter{
		maxCalls: maxCalls,
		interval: interval,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
}

// Enforce blocks until one more call fits into the window and records it.
// It only fails when ctx is cancelled while waiting.
func (l *Limiter) Enforce(ctx context.Context) error {
	for {
		wait := l.tryAcquire()
		if wait <= 0 {
			return nil
		}

		slog.Debug("Rate limit reached, waiting", "wait", wait.String(), "max_calls", l.maxCalls, "interval", l.interval.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records a call and returns 0, or returns how long to wait until
// the oldest call leaves the window. A call exactly interval old is still
// inside it.
func (l *Limiter) tryAcquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return 0
	}

	return l.calls[0].Add(l.interval).Sub(now) + time.Nanosecond
}

func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-l.interval)

	expired := 0
	for expired < len(l.calls) && l.calls[expired].Before(cutoff) {
		expired++
	}
	if expired > 0 {
		l.calls = append(l.calls[:0], l.calls[expired:]...)
	}
}

// Len returns the number of calls currently inside the window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(l.now())
	return len(l.calls)
}

func (l *Limiter) MaxCalls() int {
	return l.maxCalls
}
