package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(Config{FailureRateThreshold: 0.5, WindowSize: 4, MinimumCalls: 4, Cooldown: time.Minute, Now: clock.Now})

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d: unexpected %v", i, err)
		}
		b.Record(i == 0)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed below minimum calls, got %s", b.State())
	}
	_ = b.Allow()
	b.Record(true)
	if b.State() != StateOpen {
		t.Fatalf("expected open at 2/4 failures, got %s", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	b := New(Config{
		Name: "ai", WindowSize: 2, MinimumCalls: 2, Cooldown: 10 * time.Second, HalfOpenProbes: 2, Now: clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	clock.Advance(10 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	if err := b.Allow(); err != nil {
		t.Fatalf("probe 1 refused: %v", err)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("probe 2 refused: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("expected third probe refused, got %v", err)
	}
	b.Record(true)
	if b.State() != StateHalfOpen {
		t.Errorf("expected half-open until all probes succeed")
	}
	b.Record(true)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: want %s got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(Config{WindowSize: 1, MinimumCalls: 1, Cooldown: time.Second, Now: clock.Now})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	clock.Advance(time.Second)
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after failed probe, got %s", b.State())
	}
}

func TestBreaker_SlidingWindow(t *testing.T) {
	b := New(Config{FailureRateThreshold: 0.75, WindowSize: 4, MinimumCalls: 4})
	outcomes := []bool{false, false, true, true, true, false, false}
	for _, ok := range outcomes {
		_ = b.Allow()
		b.Record(ok)
	}
	// the last four outcomes hold two failures
	if b.State() != StateClosed {
		t.Errorf("expected closed with 2/4 failures in window, got %s", b.State())
	}
}

func TestRetry_StopsWhenOpen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(Config{WindowSize: 3, MinimumCalls: 3, Cooldown: time.Minute, Now: clock.Now})
	cfg := RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	calls := 0
	timeout := func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	}

	err := Retry(context.Background(), cfg, b, timeout)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected last attempt error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected breaker open after 3 failed attempts, got %s", b.State())
	}

	err = Retry(context.Background(), cfg, b, timeout)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected no further network attempts while open, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
