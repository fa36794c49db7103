// Package breaker provides a failure-rate circuit breaker and a bounded
// retry helper that cooperates with it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling out while the circuit is open.
var ErrOpen = errors.New("breaker: circuit open")

// State is the breaker position.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config defines the breaker thresholds. Zero values take defaults.
type Config struct {
	Name string
	// FailureRateThreshold in (0,1] opens the circuit once reached.
	FailureRateThreshold float64
	// WindowSize is the number of most recent outcomes considered.
	WindowSize int
	// MinimumCalls must be recorded before the rate is evaluated.
	MinimumCalls int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenProbes trial calls must all succeed to close again.
	HalfOpenProbes int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// OnStateChange is called with the lock released.
	OnStateChange func(name string, from, to State)
}

// Breaker is a Closed/Open/Half-Open state machine. It is safe for
// concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state    State
	window   []bool
	pos      int
	count    int
	failures int
	openedAt time.Time

	probes    int
	successes int
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureRateThreshold <= 0 || cfg.FailureRateThreshold > 1 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = 5
	}
	if cfg.MinimumCalls > cfg.WindowSize {
		cfg.MinimumCalls = cfg.WindowSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		cfg:    cfg,
		window: make([]bool, cfg.WindowSize),
	}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.cfg.Name }

// State returns the current state, moving Open to Half-Open once the
// cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.advance()
	s := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return s
}

// Allow reserves permission for one call. Every nil return must be
// followed by exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from, to := b.advance()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			err = ErrOpen
		} else {
			b.probes++
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		b.push(success)
		if b.count >= b.cfg.MinimumCalls &&
			float64(b.failures)/float64(b.count) >= b.cfg.FailureRateThreshold {
			b.trip()
		}
	case StateHalfOpen:
		if !success {
			b.trip()
			break
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.reset(StateClosed)
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Execute runs fn if the circuit admits it and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.Record(err == nil)
	return err
}

// advance must be called with the lock held.
func (b *Breaker) advance() (from, to State) {
	from = b.state
	if b.state == StateOpen && !b.cfg.Now().Before(b.openedAt.Add(b.cfg.Cooldown)) {
		b.state = StateHalfOpen
		b.probes = 0
		b.successes = 0
	}
	return from, b.state
}

func (b *Breaker) push(success bool) {
	if b.count == len(b.window) {
		if !b.window[b.pos] {
			b.failures--
		}
	} else {
		b.count++
	}
	b.window[b.pos] = success
	if !success {
		b.failures++
	}
	b.pos = (b.pos + 1) % len(b.window)
}

func (b *Breaker) trip() {
	b.reset(StateOpen)
	b.openedAt = b.cfg.Now()
}

func (b *Breaker) reset(s State) {
	b.state = s
	b.pos, b.count, b.failures = 0, 0, 0
	b.probes, b.successes = 0, 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
