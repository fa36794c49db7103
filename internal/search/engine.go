// Package search runs the three search operations of a vendor: resolve a
// category, encode the filters, call the vendor and normalize the answer.
// Vendor failures degrade to fewer or zero rows; only configuration and
// caller errors are returned.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/partscout/internal/ai"
	"github.com/FranksOps/partscout/internal/filter"
	"github.com/FranksOps/partscout/internal/fingerprint"
	"github.com/FranksOps/partscout/internal/grid"
	"github.com/FranksOps/partscout/internal/scraper"
	"github.com/FranksOps/partscout/internal/session"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/internal/vendor"
	"github.com/FranksOps/partscout/pkg/breaker"
	"github.com/FranksOps/partscout/pkg/proxy"
	"github.com/FranksOps/partscout/pkg/ratelimit"
	"github.com/FranksOps/partscout/pkg/useragent"
)

// ErrUnsupported is returned for an operation the vendor does not offer.
var ErrUnsupported = errors.New("search: operation not supported")

// Filter keys with a meaning of their own in parametric requests.
const (
	KeyMPN     = "mpn"
	KeyDetails = "details"
)

// DefaultMaxResults caps parametric results when the caller sets no limit.
const DefaultMaxResults = 100

// ParametricRequest is a category plus filter search.
type ParametricRequest struct {
	Category    string
	Subcategory string
	PartNumber  string
	Filters     filter.Set
	Details     string
	MaxResults  int
}

// CrossRef holds the two sections of a cross-reference answer.
type CrossRef struct {
	Vendor     string
	Competitor []grid.Row
	Own        []grid.Row
}

// MarshalJSON renders {"competitor": [...], "<vendor>": [...]}.
func (c CrossRef) MarshalJSON() ([]byte, error) {
	competitor, err := json.Marshal(c.Competitor)
	if err != nil {
		return nil, err
	}
	own, err := json.Marshal(c.Own)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(c.Vendor)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"competitor":`)
	buf.Write(competitor)
	buf.WriteByte(',')
	buf.Write(name)
	buf.WriteByte(':')
	buf.Write(own)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Options builds one vendor engine.
type Options struct {
	Vendor vendor.Config
	// AI is the raw collaborator; nil disables the AI stage and details.
	AI ai.Classifier
	// Breaker and Retry tune the AI guard.
	Breaker       breaker.Config
	Retry         breaker.RetryConfig
	AICallTimeout time.Duration
	// MaxResults defaults to DefaultMaxResults.
	MaxResults int
	UAPool     *useragent.Pool
	Store      storage.Backend
	Logger     *slog.Logger
	// Transport replaces the fingerprinted transport, for tests.
	Transport http.RoundTripper
}

// Engine serves one vendor. It is long-lived and safe for concurrent use.
type Engine struct {
	caps       vendor.Capabilities
	fetcher    *scraper.Fetcher
	warmup     *scraper.Warmup
	limiter    *ratelimit.Limiter
	guard      *ai.Guarded
	maxResults int
	log        *slog.Logger
}

// NewEngine wires the fetcher, session, warm-up, guarded AI and vendor
// strategy for opts.Vendor.
func NewEngine(opts Options) (*Engine, error) {
	cfg := opts.Vendor
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	log := opts.Logger.With("component", "search", "vendor", cfg.Name)

	var pool *proxy.Pool
	if len(cfg.Proxies) > 0 {
		var err error
		if pool, err = proxy.NewPool(proxy.Config{}, cfg.Proxies...); err != nil {
			return nil, fmt.Errorf("search: %s: %w", cfg.Name, err)
		}
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RPS:    cfg.RateLimit.RPS,
		Burst:  cfg.RateLimit.Burst,
		Jitter: cfg.RateLimit.Jitter,
	})

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Vendor:          cfg.Name,
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.Timeout,
		Session:         session.New(cfg.Warmup.Constants),
		UAPool:          opts.UAPool,
		Fingerprint:     fingerprint.Profile(cfg.Fingerprint),
		ProxyPool:       pool,
		Limiter:         limiter,
		HandledStatuses: cfg.HandledStatuses,
		Headers:         cfg.Headers,
		RequireJSON:     true,
		Store:           opts.Store,
		Logger:          opts.Logger,
		Transport:       opts.Transport,
	})
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	var guard *ai.Guarded
	var collaborator vendor.Collaborator
	if opts.AI != nil {
		guard = ai.NewGuarded(opts.AI, ai.GuardConfig{
			Name:        cfg.Name,
			Breaker:     opts.Breaker,
			Retry:       opts.Retry,
			CallTimeout: opts.AICallTimeout,
			Category: ai.CategoryQuery{
				Vendor:   cfg.Name,
				Endpoint: strings.TrimRight(cfg.BaseURL, "/") + cfg.MPNPath,
				Example:  cfg.DefaultCategory,
				Allowed:  cfg.Allowed(),
			},
			Logger: opts.Logger,
		})
		collaborator = guard
	}

	caps, err := vendor.New(cfg, vendor.Deps{Search: fetcher, AI: collaborator, Logger: opts.Logger})
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	e := &Engine{
		caps:       caps,
		fetcher:    fetcher,
		limiter:    limiter,
		guard:      guard,
		maxResults: opts.MaxResults,
		log:        log,
	}
	if caps.NeedsWarmup() {
		e.warmup, err = scraper.NewWarmup(fetcher, scraper.WarmupConfig{
			Path:     cfg.Warmup.Path,
			Patterns: cfg.Warmup.Patterns,
			Timeout:  cfg.Warmup.Timeout,
			Logger:   opts.Logger,
		})
		if err != nil {
			limiter.Stop()
			return nil, fmt.Errorf("search: %s: %w", cfg.Name, err)
		}
	}
	return e, nil
}

// Vendor returns the vendor name.
func (e *Engine) Vendor() string { return e.caps.Name() }

// Supports reports whether the vendor offers op.
func (e *Engine) Supports(op vendor.Operation) bool { return e.caps.Supports(op) }

// Session exposes the engine's cookie jar and constants.
func (e *Engine) Session() *session.Context { return e.fetcher.Session() }

// AIState reports the AI category breaker state, or "disabled".
func (e *Engine) AIState() string {
	if e.guard == nil {
		return "disabled"
	}
	return e.guard.CategoryState().String()
}

// Close stops the engine's background work.
func (e *Engine) Close() {
	e.limiter.Stop()
}

// SearchMPN looks a part number up. A blank part number finds nothing.
func (e *Engine) SearchMPN(ctx context.Context, pn string) ([]grid.Row, error) {
	if !e.caps.Supports(vendor.OpMPN) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, e.Vendor(), vendor.OpMPN)
	}
	pn = strings.TrimSpace(pn)
	if pn == "" {
		return []grid.Row{}, nil
	}
	q := vendor.Query{Op: vendor.OpMPN, PartNumber: pn}
	res, err := e.run(ctx, q)
	if err != nil {
		return nil, err
	}
	if res.Rows == nil {
		return []grid.Row{}, nil
	}
	return res.Rows, nil
}

// SearchParametric searches by category and filters. A part number, given
// directly or as the "mpn" filter, scopes the category instead of the
// path. A "details" filter holding text is treated as free-text details.
func (e *Engine) SearchParametric(ctx context.Context, req ParametricRequest) ([]grid.Row, error) {
	if !e.caps.Supports(vendor.OpParametric) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, e.Vendor(), vendor.OpParametric)
	}
	q := vendor.Query{
		Op:          vendor.OpParametric,
		PartNumber:  strings.TrimSpace(req.PartNumber),
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Filters:     req.Filters.Without(KeyMPN, KeyDetails),
		Details:     req.Details,
		MaxResults:  req.MaxResults,
	}
	if v, ok := req.Filters[KeyMPN]; ok && v.Kind() == filter.KindScalar {
		q.PartNumber = strings.TrimSpace(v.Text())
	}
	if v, ok := req.Filters[KeyDetails]; ok && v.Kind() == filter.KindScalar && strings.TrimSpace(q.Details) == "" {
		q.Details = v.Text()
	}
	if q.MaxResults <= 0 {
		q.MaxResults = e.maxResults
	}

	res, err := e.run(ctx, q)
	if err != nil {
		return nil, err
	}
	rows := res.Rows
	if rows == nil {
		rows = []grid.Row{}
	}
	if len(rows) > q.MaxResults {
		rows = rows[:q.MaxResults]
	}
	return rows, nil
}

// SearchCrossRef finds the vendor's equivalents of a competitor part.
func (e *Engine) SearchCrossRef(ctx context.Context, competitorPN string, path []string) (CrossRef, error) {
	out := CrossRef{Vendor: e.Vendor(), Competitor: []grid.Row{}, Own: []grid.Row{}}
	if !e.caps.Supports(vendor.OpCrossRef) {
		return out, fmt.Errorf("%w: %s %s", ErrUnsupported, e.Vendor(), vendor.OpCrossRef)
	}
	pn := strings.TrimSpace(strings.ReplaceAll(competitorPN, "#", ""))
	if pn == "" {
		return out, nil
	}
	res, err := e.run(ctx, vendor.Query{Op: vendor.OpCrossRef, PartNumber: pn, Path: path})
	if err != nil {
		return out, err
	}
	if res.Competitor != nil {
		out.Competitor = res.Competitor
	}
	if res.Own != nil {
		out.Own = res.Own
	}
	return out, nil
}

// run is the shared shape of every operation.
func (e *Engine) run(ctx context.Context, q vendor.Query) (vendor.Response, error) {
	ctx = scraper.WithOperation(ctx, string(q.Op))

	cat, err := e.caps.ResolveCategory(ctx, q)
	if err != nil {
		return vendor.Response{}, err
	}
	enc, err := e.caps.EncodeFilters(ctx, cat.Code, q)
	if err != nil {
		return vendor.Response{}, err
	}
	if len(enc.Skipped) > 0 {
		e.log.Warn("filters without field mapping were ignored", "category", cat.Code, "captions", enc.Skipped)
	}

	// Requests read the session constants, so the warm-up settles first.
	if e.warmup != nil {
		e.warmup.Ensure(ctx)
	}
	req, err := e.caps.BuildRequest(e.fetcher.Session(), cat.Code, q, enc)
	if err != nil {
		return vendor.Response{}, err
	}

	var doc scraper.Document
	switch {
	case req.Method == http.MethodGet:
		doc = e.fetcher.Get(ctx, req.URI)
	case req.JSON != nil:
		doc = e.fetcher.PostJSON(ctx, req.URI, req.JSON)
	default:
		doc = e.fetcher.PostForm(ctx, req.URI, req.Form)
	}

	res := e.caps.ParseResponse(q.Op, doc.Body)
	e.log.Info("search finished",
		"op", q.Op,
		"category", cat.Code,
		"stage", cat.Stage,
		"clauses", len(enc.Clauses),
		"rows", len(res.Rows)+len(res.Own)+len(res.Competitor),
		"empty_document", doc.Empty(),
	)
	return res, nil
}
