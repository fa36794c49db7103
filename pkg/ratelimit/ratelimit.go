package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config defines a token bucket refilled at RPS with capacity Burst.
type Config struct {
	RPS float64
	// Burst tokens are available immediately. Zero means 1.
	Burst int
	// Jitter in [0,1] delays each admitted call by up to Jitter*interval.
	Jitter float64
}

// Limiter controls the rate and timing of outbound vendor calls. It is safe
// for concurrent use by multiple goroutines.
type Limiter struct {
	tokens   chan struct{}
	stop     chan struct{}
	once     sync.Once
	jitter   float64
	interval time.Duration
}

// NewLimiter starts a limiter. If RPS is <= 0, the limiter does not block.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RPS <= 0 {
		return &Limiter{}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	} else if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}

	l := &Limiter{
		tokens:   make(chan struct{}, cfg.Burst),
		stop:     make(chan struct{}),
		jitter:   cfg.Jitter,
		interval: time.Duration(float64(time.Second) / cfg.RPS),
	}
	for i := 0; i < cfg.Burst; i++ {
		l.tokens <- struct{}{}
	}
	go l.refill()
	return l
}

func (l *Limiter) refill() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			select {
			case l.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or ctx is done. Jitter, when
// configured, adds a random extra delay after the token is taken.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.tokens == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
	}

	if l.jitter > 0 {
		extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
		if extra > 0 {
			t := time.NewTimer(extra)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Stop releases the refill goroutine. Wait keeps draining remaining tokens.
func (l *Limiter) Stop() {
	if l == nil || l.stop == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}
