package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/dlclark/regexp2"
)

// WarmupConfig describes the entry page a vendor embeds its handshake
// constants in.
type WarmupConfig struct {
	// Path is the entry page, relative to the fetcher base URL.
	Path string
	// Patterns maps a session constant name to a pattern with one capture
	// group.
	Patterns map[string]string
	// Timeout bounds the whole warm-up. Zero means 30s.
	Timeout time.Duration
	// MaxBytes stops reading the page once reached. Zero means 2 MiB.
	MaxBytes int64
	// MatchTimeout bounds each pattern evaluation. Zero means 250ms.
	MatchTimeout time.Duration
	// CookiePrefix names the anti-automation cookies reported after the
	// handshake. Zero means "bm_".
	CookiePrefix string
	Logger       *slog.Logger
}

// WarmupResult is the memoized outcome shared by every caller.
type WarmupResult struct {
	// Discovered lists the constants scraped from the page; the rest keep
	// their defaults.
	Discovered []string
	// Cookies lists the anti-automation cookies in the jar afterwards.
	Cookies []string
	Err     error
}

type constantPattern struct {
	name string
	re   *regexp2.Regexp
}

const (
	streamChunk   = 8 << 10
	streamOverlap = 1 << 10
)

// Warmup performs the one-time handshake of a vendor engine. A nil Warmup
// is valid and does nothing.
type Warmup struct {
	f        *Fetcher
	cfg      WarmupConfig
	patterns []constantPattern
	log      *slog.Logger

	started atomic.Bool
	done    chan struct{}
	result  WarmupResult
}

// NewWarmup compiles the constant patterns. A pattern that does not compile
// or lacks a capture group is a configuration error.
func NewWarmup(f *Fetcher, cfg WarmupConfig) (*Warmup, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 << 20
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = 250 * time.Millisecond
	}
	if cfg.CookiePrefix == "" {
		cfg.CookiePrefix = "bm_"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	names := make([]string, 0, len(cfg.Patterns))
	for name := range cfg.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	patterns := make([]constantPattern, 0, len(names))
	for _, name := range names {
		re, err := regexp2.Compile(cfg.Patterns[name], regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("scraper: warm-up pattern %q: %w", name, err)
		}
		if len(re.GetGroupNumbers()) < 2 {
			return nil, fmt.Errorf("scraper: warm-up pattern %q has no capture group", name)
		}
		re.MatchTimeout = cfg.MatchTimeout
		patterns = append(patterns, constantPattern{name: name, re: re})
	}

	return &Warmup{
		f:        f,
		cfg:      cfg,
		patterns: patterns,
		log:      cfg.Logger.With("vendor", f.Vendor()),
		done:     make(chan struct{}),
	}, nil
}

// Ensure runs the handshake at most once. Concurrent callers wait for the
// single attempt and share its result. Failure only leaves the default
// constants in effect.
func (w *Warmup) Ensure(ctx context.Context) WarmupResult {
	if w == nil {
		return WarmupResult{}
	}
	if w.started.CompareAndSwap(false, true) {
		w.result = w.run(ctx)
		close(w.done)
		return w.result
	}
	select {
	case <-w.done:
		return w.result
	case <-ctx.Done():
		return WarmupResult{Err: ctx.Err()}
	}
}

// Done reports whether the handshake has completed.
func (w *Warmup) Done() bool {
	if w == nil {
		return true
	}
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Warmup) run(ctx context.Context) WarmupResult {
	// A caller giving up must not cut the shared attempt short.
	ctx = WithOperation(context.WithoutCancel(ctx), "warmup")

	found := make(map[string]string, len(w.patterns))
	err := w.f.Stream(ctx, w.cfg.Path, w.cfg.Timeout, func(r io.Reader) error {
		return w.scan(r, found)
	})

	sess := w.f.Session()
	res := WarmupResult{Err: err}
	for _, p := range w.patterns {
		if v, ok := found[p.name]; ok {
			sess.SetConstant(p.name, v)
			res.Discovered = append(res.Discovered, p.name)
		}
	}
	res.Cookies = sess.CookieNames(w.cfg.CookiePrefix)

	outcome := "discovered"
	switch {
	case len(res.Discovered) == 0:
		outcome = "defaults"
	case len(res.Discovered) < len(w.patterns):
		outcome = "partial"
	}
	metrics.RecordWarmup(w.f.Vendor(), outcome)

	attrs := []any{"outcome", outcome, "discovered", res.Discovered, "cookies", res.Cookies}
	for _, name := range sess.ConstantNames() {
		attrs = append(attrs, name, sess.Constant(name))
	}
	if err != nil {
		w.log.Warn("warm-up failed, using default constants", append(attrs, "err", err)...)
	} else {
		w.log.Info("warm-up complete", attrs...)
	}
	return res
}

// scan reads r chunk by chunk until every pattern has matched, the byte cap
// is hit or the body ends. Only a sliding window of the page is kept; the
// overlap catches markers split across chunk boundaries.
func (w *Warmup) scan(r io.Reader, found map[string]string) error {
	buf := make([]byte, streamChunk)
	var window []byte
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			window = append(window, buf[:n]...)
			if w.match(string(window), found) {
				return nil
			}
			if total >= w.cfg.MaxBytes {
				return nil
			}
			if len(window) > streamOverlap {
				window = append(window[:0], window[len(window)-streamOverlap:]...)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scraper: warm-up read: %w", err)
		}
	}
}

// match fills found from text and reports whether every pattern matched.
func (w *Warmup) match(text string, found map[string]string) bool {
	for _, p := range w.patterns {
		if _, ok := found[p.name]; ok {
			continue
		}
		m, err := p.re.FindStringMatch(text)
		if err != nil {
			w.log.Debug("warm-up pattern timed out", "constant", p.name, "err", err)
			continue
		}
		if m == nil {
			continue
		}
		if g := m.GroupByNumber(1); g != nil && g.String() != "" {
			found[p.name] = g.String()
		}
	}
	return len(found) == len(w.patterns)
}
