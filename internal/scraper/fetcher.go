package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/partscout/internal/bypass"
	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/session"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/pkg/httpclient"
	"github.com/FranksOps/partscout/pkg/proxy"
	"github.com/FranksOps/partscout/pkg/ratelimit"
	"github.com/FranksOps/partscout/pkg/useragent"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// ErrPoolTimeout is recorded when no pooled connection frees up within the
// acquire wait.
var ErrPoolTimeout = errors.New("scraper: connection pool acquire timed out")

type contextKey string

const (
	proxyKey     contextKey = "proxy_url"
	operationKey contextKey = "operation"
)

const (
	acceptJSON = "application/json, text/javascript, */*; q=0.01"
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// WithOperation labels the vendor calls made with ctx in the audit trail and
// metrics. Unlabelled calls count as "search".
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

func operation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return "search"
}

// FetchConfig configures the client one vendor engine uses for its lifetime.
type FetchConfig struct {
	Vendor string
	// BaseURL resolves relative request URIs and is sent as Referer.
	BaseURL string
	// Timeout bounds each call. Zero means 25s.
	Timeout time.Duration
	// Session is the cookie jar and constant store. Nil gets a fresh one.
	Session     *session.Context
	UAPool      *useragent.Pool
	Fingerprint fingerprint.Profile
	ProxyPool   *proxy.Pool
	Limiter     *ratelimit.Limiter
	// MaxConns bounds concurrent calls and pooled connections. Zero means 50.
	MaxConns int
	// AcquireWait bounds the wait for a free slot. Zero means 2s.
	AcquireWait time.Duration
	// HandledStatuses are non-2xx statuses whose body is still returned.
	HandledStatuses []int
	// Headers are set on every request after the defaults.
	Headers map[string]string
	// RequireJSON degrades bodies that are not valid JSON.
	RequireJSON bool
	// MaxBodyBytes caps a decoded body. Zero means 16 MiB.
	MaxBodyBytes int64
	Detectors    []bypass.Detector
	Store        storage.Backend
	Logger       *slog.Logger
	// Transport replaces the fingerprinted transport, for tests.
	Transport http.RoundTripper
}

// Fetcher executes vendor calls. Every I/O failure is logged and recorded,
// never returned: callers receive the empty Document instead.
type Fetcher struct {
	cfg       FetchConfig
	base      *url.URL
	client    *httpclient.Client
	sem       *semaphore.Weighted
	handled   map[int]bool
	detectors []bypass.Detector
	log       *slog.Logger
}

// NewFetcher builds the pooled client. It fails only on configuration: an
// unresolvable base URL or an unknown TLS profile.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("scraper: %s: unresolvable base URL %q", cfg.Vendor, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 50
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 2 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	if cfg.Session == nil {
		cfg.Session = session.New(nil)
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		profile, err := fingerprint.ParseProfile(string(cfg.Fingerprint))
		if err != nil {
			return nil, fmt.Errorf("scraper: %s: %w", cfg.Vendor, err)
		}
		// Per-request proxy rotation: the proxy chosen for a call travels in
		// its context.
		proxyFunc := func(req *http.Request) (*url.URL, error) {
			if u, ok := req.Context().Value(proxyKey).(*url.URL); ok {
				return u, nil
			}
			return http.ProxyFromEnvironment(req)
		}
		transport, err = fingerprint.Transport(profile, fingerprint.Options{
			Proxy:           proxyFunc,
			MaxConnsPerHost: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("scraper: %s: transport: %w", cfg.Vendor, err)
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:   -1,
		Jar:       cfg.Session,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: %s: client: %w", cfg.Vendor, err)
	}

	handled := make(map[int]bool, len(cfg.HandledStatuses))
	for _, s := range cfg.HandledStatuses {
		handled[s] = true
	}

	return &Fetcher{
		cfg:       cfg,
		base:      base,
		client:    client,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConns)),
		handled:   handled,
		detectors: cfg.Detectors,
		log:       cfg.Logger.With("vendor", cfg.Vendor),
	}, nil
}

// Vendor returns the configured vendor name.
func (f *Fetcher) Vendor() string { return f.cfg.Vendor }

// Session returns the jar and constant store shared by every call.
func (f *Fetcher) Session() *session.Context { return f.cfg.Session }

// Resolve turns uri into an absolute URL against the base URL. Absolute
// URIs pass through.
func (f *Fetcher) Resolve(uri string) string {
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return f.base.ResolveReference(ref).String()
}

// Get issues a GET.
func (f *Fetcher) Get(ctx context.Context, uri string) Document {
	return f.fetch(ctx, http.MethodGet, uri, nil, "")
}

// PostForm issues a url-encoded POST.
func (f *Fetcher) PostForm(ctx context.Context, uri string, form url.Values) Document {
	return f.fetch(ctx, http.MethodPost, uri, []byte(form.Encode()), "application/x-www-form-urlencoded; charset=UTF-8")
}

// PostJSON issues a POST with a JSON body.
func (f *Fetcher) PostJSON(ctx context.Context, uri string, body []byte) Document {
	return f.fetch(ctx, http.MethodPost, uri, body, "application/json")
}

func (f *Fetcher) fetch(ctx context.Context, method, uri string, body []byte, contentType string) Document {
	var doc Document
	err := f.exchange(ctx, f.cfg.Timeout, method, uri, body, contentType, acceptJSON, func(resp *http.Response, ex *storage.Exchange) error {
		data, err := httpclient.ReadBody(resp, f.cfg.MaxBodyBytes)
		ex.Bytes = int64(len(data))
		if err != nil {
			return err
		}
		if src, ok := bypass.Detect(&bypass.Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, f.detectors); ok {
			ex.DetectedBot, ex.DetectionSrc = true, src
			return fmt.Errorf("scraper: %s challenge (status %d)", src, resp.StatusCode)
		}
		if !f.accepts(resp.StatusCode) {
			return fmt.Errorf("scraper: unexpected status %d", resp.StatusCode)
		}
		if f.cfg.RequireJSON && len(bytes.TrimSpace(data)) > 0 && !gjson.ValidBytes(data) {
			return errors.New("scraper: response is not valid JSON")
		}
		doc = Document{Body: data, Status: resp.StatusCode, Header: resp.Header}
		return nil
	})
	if err != nil {
		return Document{}
	}
	return doc
}

// Stream issues a GET for an HTML page and hands fn the decoded body as it
// arrives, so fn can stop reading early. timeout bounds the whole call.
// The error is returned for logging only; it has already been recorded.
func (f *Fetcher) Stream(ctx context.Context, uri string, timeout time.Duration, fn func(io.Reader) error) error {
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	return f.exchange(ctx, timeout, http.MethodGet, uri, nil, "", acceptHTML, func(resp *http.Response, ex *storage.Exchange) error {
		if !f.accepts(resp.StatusCode) {
			return fmt.Errorf("scraper: unexpected status %d", resp.StatusCode)
		}
		r, err := httpclient.Decode(resp)
		if err != nil {
			return err
		}
		cr := &countingReader{r: r}
		err = fn(cr)
		ex.Bytes = cr.n
		return err
	})
}

func (f *Fetcher) accepts(status int) bool {
	return (status >= 200 && status < 300) || f.handled[status]
}

// exchange runs one audited call. handle sees the response while its body
// is still open and the pool slot is still held.
func (f *Fetcher) exchange(ctx context.Context, timeout time.Duration, method, uri string, body []byte, contentType, accept string, handle func(*http.Response, *storage.Exchange) error) error {
	target := f.Resolve(uri)
	ex := storage.NewExchange(f.cfg.Vendor, operation(ctx), method, target)
	start := time.Now()

	err := f.roundTrip(ctx, timeout, ex, body, contentType, accept, handle)

	ex.Duration = time.Since(start)
	if err != nil {
		ex.Error = err.Error()
		f.log.Warn("vendor call degraded to empty document",
			"op", ex.Operation, "method", method, "url", target, "status", ex.Status, "err", err)
	} else {
		f.log.Debug("vendor call", "op", ex.Operation, "method", method, "url", target,
			"status", ex.Status, "bytes", ex.Bytes, "duration", ex.Duration)
	}
	f.record(ctx, ex)
	return err
}

func (f *Fetcher) roundTrip(ctx context.Context, timeout time.Duration, ex *storage.Exchange, body []byte, contentType, accept string, handle func(*http.Response, *storage.Exchange) error) error {
	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("scraper: rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := f.acquire(ctx); err != nil {
		return err
	}
	defer f.sem.Release(1)

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, ex.Method, ex.URL, rdr)
	if err != nil {
		return fmt.Errorf("scraper: build request: %w", err)
	}
	f.decorate(req, contentType, accept)

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		if activeProxy = f.cfg.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		return err
	}
	defer resp.Body.Close()
	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	ex.Status = resp.StatusCode
	return handle(resp, ex)
}

func (f *Fetcher) acquire(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, f.cfg.AcquireWait)
	defer cancel()
	if err := f.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("scraper: %w", ctx.Err())
		}
		return fmt.Errorf("%w after %s", ErrPoolTimeout, f.cfg.AcquireWait)
	}
	return nil
}

// decorate sets the browser identity. Cookies come from the session jar.
func (f *Fetcher) decorate(req *http.Request, contentType, accept string) {
	ua := f.cfg.UAPool.GetSequential()
	h := req.Header
	h.Set("User-Agent", ua)
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "br, gzip")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Referer", f.base.Scheme+"://"+f.base.Host+"/")
	for k, v := range useragent.ClientHints(ua) {
		h.Set(k, v)
	}
	for k, v := range f.cfg.Headers {
		h.Set(k, v)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
}

func (f *Fetcher) record(ctx context.Context, ex *storage.Exchange) {
	metrics.RecordExchange(ex)
	if f.cfg.Store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := f.cfg.Store.Save(sctx, ex); err != nil {
		f.log.Warn("failed to save exchange", "id", ex.ID, "err", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
