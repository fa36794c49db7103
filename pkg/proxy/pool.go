package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: not in pool")

// Stat is a snapshot of one endpoint's health.
type Stat struct {
	URL           string
	Failures      int
	Successes     int
	DisabledUntil time.Time
}

type endpoint struct {
	url           *url.URL
	key           string
	failures      int
	successes     int
	disabledUntil time.Time
}

// Pool rotates vendor traffic across proxies and benches an endpoint for a
// cool-down once it reaches MaxFailures consecutive-ish failures.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a proxy remains disabled after hitting MaxFailures.
	Cooldown time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewPool creates a pool holding rawURLs. A URL without a scheme is taken
// as http.
func NewPool(cfg Config, rawURLs ...string) (*Pool, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		p.endpoints = append(p.endpoints, &endpoint{url: u, key: u.String()})
	}
	return p, nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next healthy proxy in round-robin order, or nil if the
// pool is empty or every proxy is cooling down. Every proxy whose cooldown
// has passed is revived with a clean failure count.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, ep := range p.endpoints {
		if !ep.disabledUntil.IsZero() && !now.Before(ep.disabledUntil) {
			ep.disabledUntil = time.Time{}
			ep.failures = 0
		}
	}

	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		ep := p.endpoints[(p.next+i)%n]
		if !ep.disabledUntil.IsZero() {
			continue
		}
		p.next = (p.next + i + 1) % n
		return ep.url
	}
	return nil
}

// MarkSuccess records a successful request through u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.update(u, func(ep *endpoint) {
		ep.successes++
		if ep.failures > 0 {
			ep.failures--
		}
	})
}

// MarkFailure records a failed request through u, benching it once the
// failure count reaches the limit.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.update(u, func(ep *endpoint) {
		ep.failures++
		if ep.failures >= p.maxFailures {
			ep.disabledUntil = p.now().Add(p.cooldown)
		}
	})
}

// Stats returns a snapshot of every endpoint.
func (p *Pool) Stats() []Stat {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stat, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = Stat{URL: ep.key, Failures: ep.failures, Successes: ep.successes, DisabledUntil: ep.disabledUntil}
	}
	return out
}

func (p *Pool) update(u *url.URL, fn func(*endpoint)) error {
	if u == nil {
		return errors.New("proxy: url cannot be nil")
	}
	key := u.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.key == key {
			fn(ep)
			return nil
		}
	}
	return ErrUnknownProxy
}
