// Package ratelimit spaces outbound calls to rate limited services.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitCancelled is returned when the context ends before the slot arrives.
var ErrWaitCancelled = errors.New("ratelimit: wait cancelled")

// =============================================================================
// Interval Limiter - minimum spacing between granted slots
// =============================================================================

// Gate is an optional second stage, e.g. a limiter shared across processes.
type Gate interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter grants slots at least interval apart. Reserving a slot is a
// single critical section: the next slot is computed and recorded under the
// lock, and the caller sleeps afterwards. Concurrent callers therefore queue
// behind each other instead of all observing the same last grant.
type IntervalLimiter struct {
	interval time.Duration
	gate     Gate

	mu   sync.Mutex
	last time.Time // last granted slot, zero until the first grant

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIntervalLimiter creates a limiter. gate may be nil.
func NewIntervalLimiter(interval time.Duration, gate Gate) *IntervalLimiter {
	return &IntervalLimiter{
		interval: interval,
		gate:     gate,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval returns the minimum spacing.
func (l *IntervalLimiter) Interval() time.Duration {
	return l.interval
}

// reserve books the next slot and returns when it starts.
func (l *IntervalLimiter) reserve() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.interval); next.After(now) {
			slot = next
		}
	}
	l.last = slot
	return slot
}

// Wait suspends until the caller's slot. A cancelled context returns
// ErrWaitCancelled; the slot stays booked, so spacing holds for
// everyone queued after it.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	slot := l.reserve()
	if d := slot.Sub(l.now()); d > 0 {
		if err := l.sleep(ctx, d); err != nil {
			return ErrWaitCancelled
		}
	}
	if l.gate != nil {
		if err := l.gate.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
