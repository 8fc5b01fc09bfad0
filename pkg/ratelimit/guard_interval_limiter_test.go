package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestIntervalLimiter_FirstSlotImmediate(t *testing.T) {
	l := NewIntervalLimiter(time.Hour, nil)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("first slot should be granted immediately")
	}
}

func TestIntervalLimiter_BackToBackSpacing(t *testing.T) {
	interval := 60 * time.Millisecond
	l := NewIntervalLimiter(interval, nil)

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	first := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if gap := time.Since(first); gap < interval-5*time.Millisecond {
		t.Errorf("gap = %v, want >= %v", gap, interval)
	}
}

func TestIntervalLimiter_ConcurrentReservations(t *testing.T) {
	// Reservations are checked on a fake clock so the test is exact.
	base := time.Unix(1000, 0)
	l := NewIntervalLimiter(time.Second, nil)
	l.now = func() time.Time { return base }
	l.sleep = func(context.Context, time.Duration) error { return nil }

	const callers = 20
	slots := make([]time.Time, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slots[i] = l.reserve()
		}(i)
	}
	wg.Wait()

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	for i := 1; i < callers; i++ {
		if gap := slots[i].Sub(slots[i-1]); gap < time.Second {
			t.Fatalf("slots %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestIntervalLimiter_CancelledWait(t *testing.T) {
	l := NewIntervalLimiter(time.Hour, nil)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if !errors.Is(err, ErrWaitCancelled) {
		t.Errorf("Wait() error = %v, want ErrWaitCancelled", err)
	}
}

type countingGate struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGate) Wait(context.Context) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return nil
}

func TestIntervalLimiter_UsesGate(t *testing.T) {
	gate := &countingGate{}
	l := NewIntervalLimiter(time.Millisecond, gate)

	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if gate.calls != 3 {
		t.Errorf("gate calls = %d, want 3", gate.calls)
	}
}
