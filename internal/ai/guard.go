package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/partscout/internal/filter"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/pkg/breaker"
)

// GuardConfig tunes the resilience wrapper of one vendor engine.
type GuardConfig struct {
	// Name prefixes the breaker names, usually the vendor.
	Name    string
	Breaker breaker.Config
	Retry   breaker.RetryConfig
	// CallTimeout bounds each attempt. Zero means 20s.
	CallTimeout time.Duration
	// Category describes the vendor for category prompts. PartNumber is
	// filled per call.
	Category CategoryQuery
	Logger   *slog.Logger
}

// Guarded wraps a Classifier in retry and a circuit breaker per purpose.
// Callers never see an error: every failure, an open circuit included, is
// a non-answer. A Guarded over a nil Classifier always answers nothing.
type Guarded struct {
	inner    Classifier
	category *breaker.Breaker
	details  *breaker.Breaker
	retry    breaker.RetryConfig
	timeout  time.Duration
	query    CategoryQuery
	allowed  map[string]bool
	log      *slog.Logger
}

// NewGuarded builds the wrapper with one breaker for category suggestions
// and one for details classification.
func NewGuarded(inner Classifier, cfg GuardConfig) *Guarded {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "ai", "vendor", cfg.Name)

	newBreaker := func(purpose string) *breaker.Breaker {
		bc := cfg.Breaker
		bc.Name = cfg.Name + "/" + purpose
		next := cfg.Breaker.OnStateChange
		bc.OnStateChange = func(name string, from, to breaker.State) {
			log.Warn("ai circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordBreakerState(name, from, to)
			if next != nil {
				next(name, from, to)
			}
		}
		return breaker.New(bc)
	}

	allowed := make(map[string]bool, len(cfg.Category.Allowed))
	for _, code := range cfg.Category.Allowed {
		allowed[code] = true
	}

	return &Guarded{
		inner:    inner,
		category: newBreaker("category"),
		details:  newBreaker("details"),
		retry:    cfg.Retry,
		timeout:  cfg.CallTimeout,
		query:    cfg.Category,
		allowed:  allowed,
		log:      log,
	}
}

// SuggestCategory returns a category code for pn, or "" when the
// collaborator fails, the circuit is open or the answer is not an allowed
// code. Without allowed codes the stage is disabled and nothing is asked.
func (g *Guarded) SuggestCategory(ctx context.Context, pn string) string {
	if g == nil || g.inner == nil || len(g.allowed) == 0 {
		return ""
	}
	q := g.query
	q.PartNumber = pn

	var code string
	err := breaker.Retry(ctx, g.retry, g.category, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		code, err = g.inner.SuggestCategory(cctx, q)
		return err
	})
	if err != nil {
		g.log.Warn("ai category lookup failed, falling through", "part", pn, "err", err)
		return ""
	}
	code = strings.TrimSpace(code)
	if !g.allowed[code] {
		g.log.Warn("ai suggested unknown category", "part", pn, "category", code)
		return ""
	}
	return code
}

// Classify returns the criteria extracted from text, or nil when the
// collaborator fails or the circuit is open.
func (g *Guarded) Classify(ctx context.Context, text string, captions []string) filter.Set {
	if g == nil || g.inner == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	q := DetailsQuery{Vendor: g.query.Vendor, Text: text, Captions: captions}

	var set filter.Set
	err := breaker.Retry(ctx, g.retry, g.details, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		set, err = g.inner.Classify(cctx, q)
		return err
	})
	if err != nil {
		g.log.Warn("ai details classification failed, ignoring details", "err", err)
		return nil
	}
	return set
}

// CategoryState exposes the category breaker position.
func (g *Guarded) CategoryState() breaker.State {
	return g.category.State()
}
