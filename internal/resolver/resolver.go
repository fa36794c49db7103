// Package resolver turns part numbers and category paths into the
// vendor-internal category codes every search request is scoped by.
//
// Forward resolution tries, in order: live discovery against the vendor's
// site search, the AI collaborator, the static prefix table and the
// configured default. Each stage that has nothing to say is skipped
// without side effects. Only the absence of any answer, default included,
// is an error.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/scraper"
	"golang.org/x/sync/singleflight"
)

// ErrNoCategory is returned when no stage produced a code and no default is
// configured.
var ErrNoCategory = errors.New("resolver: no category mapping")

// DefaultPrefixLen is the number of identifier characters looked up in the
// prefix tables.
const DefaultPrefixLen = 3

// Stage names the chain step that produced a code.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageAI        Stage = "ai"
	StagePrefix    Stage = "prefix"
	StageKeyword   Stage = "keyword"
	StagePath      Stage = "path"
	StageDefault   Stage = "default"
)

// Getter is the part of the vendor fetcher discovery needs.
type Getter interface {
	Get(ctx context.Context, uri string) scraper.Document
}

// CategorySuggester answers with a category code or "" for no answer. It
// must never block past its own timeout.
type CategorySuggester interface {
	SuggestCategory(ctx context.Context, pn string) string
}

// Config holds one vendor's resolution tables. Maps are read-only after
// New.
type Config struct {
	Vendor string
	// SiteSearchURL is the absolute discovery endpoint. Empty disables
	// discovery.
	SiteSearchURL string
	// Region is sent as the discovery locale. Defaults to en-us.
	Region string
	// PrefixLen defaults to DefaultPrefixLen.
	PrefixLen int

	Prefixes map[string]string
	Default  string

	CrossRefPrefixes map[string]string
	CrossRefDefault  string
	// CrossRefKeywords maps a substring of the category path to a
	// cross-reference code.
	CrossRefKeywords map[string]string

	// Paths maps lower-case "category/sub" paths to codes.
	Paths map[string]string

	Logger *slog.Logger
}

// Result is a resolved code and the stage that answered.
type Result struct {
	Code  string
	Stage Stage
}

// Resolver is safe for concurrent use. AI answers are cached for the life
// of the Resolver.
type Resolver struct {
	cfg      Config
	search   Getter
	ai       CategorySuggester
	keywords []string

	cache sync.Map
	group singleflight.Group
	log   *slog.Logger
}

// New builds a resolver. search and ai may be nil, which skips their stages.
func New(cfg Config, search Getter, ai CategorySuggester) *Resolver {
	if cfg.Region == "" {
		cfg.Region = "en-us"
	}
	if cfg.PrefixLen <= 0 {
		cfg.PrefixLen = DefaultPrefixLen
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Prefixes = upperKeys(cfg.Prefixes)
	cfg.CrossRefPrefixes = upperKeys(cfg.CrossRefPrefixes)
	paths := make(map[string]string, len(cfg.Paths))
	for k, v := range cfg.Paths {
		paths[normalizePath(k)] = v
	}
	cfg.Paths = paths

	// Keywords are tried longest first so "emi filter" beats "filter".
	keywords := make([]string, 0, len(cfg.CrossRefKeywords))
	for k := range cfg.CrossRefKeywords {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})

	return &Resolver{
		cfg:      cfg,
		search:   search,
		ai:       ai,
		keywords: keywords,
		log:      cfg.Logger.With("component", "resolver", "vendor", cfg.Vendor),
	}
}

// ForPart resolves the forward-search category of pn.
func (r *Resolver) ForPart(ctx context.Context, pn string) (Result, error) {
	pn = strings.TrimSpace(pn)
	prefix, ok := Prefix(pn, r.cfg.PrefixLen)

	if ok {
		if code := r.discover(ctx, pn, "categories"); code != "" {
			return r.found("forward", code, StageDiscovery), nil
		}
	}
	if code := r.suggest(ctx, pn); code != "" {
		return r.found("forward", code, StageAI), nil
	}
	if ok {
		if code := r.cfg.Prefixes[prefix]; code != "" {
			return r.found("forward", code, StagePrefix), nil
		}
	}
	if r.cfg.Default != "" {
		return r.found("forward", r.cfg.Default, StageDefault), nil
	}
	metrics.RecordResolution(r.cfg.Vendor, "forward", "none")
	return Result{}, fmt.Errorf("%w: %s part %q", ErrNoCategory, r.cfg.Vendor, pn)
}

// ForCrossRef resolves the cross-reference category for a competitor part,
// optionally hinted by a category path.
func (r *Resolver) ForCrossRef(ctx context.Context, pn string, path []string) (Result, error) {
	pn = strings.TrimSpace(strings.ReplaceAll(pn, "#", ""))
	prefix, ok := Prefix(pn, r.cfg.PrefixLen)

	if ok {
		if code := r.discover(ctx, pn, "crossreference"); code != "" {
			return r.found("crossref", code, StageDiscovery), nil
		}
	}
	if code := r.keyword(path); code != "" {
		return r.found("crossref", code, StageKeyword), nil
	}
	if ok {
		if code := r.cfg.CrossRefPrefixes[prefix]; code != "" {
			return r.found("crossref", code, StagePrefix), nil
		}
	}
	if r.cfg.CrossRefDefault != "" {
		return r.found("crossref", r.cfg.CrossRefDefault, StageDefault), nil
	}
	metrics.RecordResolution(r.cfg.Vendor, "crossref", "none")
	return Result{}, fmt.Errorf("%w: %s cross-reference for %q", ErrNoCategory, r.cfg.Vendor, pn)
}

// ForPath resolves a category/subcategory path: exact match first, then the
// longest configured path the given one starts with, then the default.
func (r *Resolver) ForPath(category, sub string) (Result, error) {
	path := normalizePath(category + "/" + sub)
	if path == "" {
		if r.cfg.Default != "" {
			return r.found("path", r.cfg.Default, StageDefault), nil
		}
		return Result{}, fmt.Errorf("%w: %s empty path", ErrNoCategory, r.cfg.Vendor)
	}
	if code := r.cfg.Paths[path]; code != "" {
		return r.found("path", code, StagePath), nil
	}

	var best, code string
	for k, v := range r.cfg.Paths {
		if len(k) > len(best) && (path == k || strings.HasPrefix(path, k+"/")) {
			best, code = k, v
		}
	}
	if code != "" {
		return r.found("path", code, StagePath), nil
	}
	if r.cfg.Default != "" {
		return r.found("path", r.cfg.Default, StageDefault), nil
	}
	metrics.RecordResolution(r.cfg.Vendor, "path", "none")
	return Result{}, fmt.Errorf("%w: %s path %q", ErrNoCategory, r.cfg.Vendor, path)
}

func (r *Resolver) found(kind, code string, stage Stage) Result {
	metrics.RecordResolution(r.cfg.Vendor, kind, string(stage))
	r.log.Debug("category resolved", "kind", kind, "stage", stage, "category", code)
	return Result{Code: code, Stage: stage}
}

// discover reads the first node of the named array in the site-search
// answer, preferring its first child.
func (r *Resolver) discover(ctx context.Context, pn, array string) string {
	if r.search == nil || r.cfg.SiteSearchURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("op", "AND")
	q.Set("q", pn)
	q.Set("src", "product")
	q.Set("region", r.cfg.Region)
	uri := r.cfg.SiteSearchURL
	if strings.Contains(uri, "?") {
		uri += "&" + q.Encode()
	} else {
		uri += "?" + q.Encode()
	}

	doc := r.search.Get(scraper.WithOperation(ctx, "discovery"), uri)
	if doc.Empty() {
		return ""
	}
	first := doc.JSON().Get(array + ".0")
	if code := strings.TrimSpace(first.Get("children.0.category_id").String()); code != "" {
		return code
	}
	return strings.TrimSpace(first.Get("category_id").String())
}

// suggest asks the AI collaborator once per normalized part number.
func (r *Resolver) suggest(ctx context.Context, pn string) string {
	if r.ai == nil {
		return ""
	}
	key := strings.ToUpper(strings.TrimSpace(pn))
	if key == "" {
		return ""
	}
	if v, ok := r.cache.Load(key); ok {
		return v.(string)
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		if v, ok := r.cache.Load(key); ok {
			return v, nil
		}
		code := r.ai.SuggestCategory(ctx, pn)
		if code != "" {
			r.cache.Store(key, code)
		}
		return code, nil
	})
	return v.(string)
}

func (r *Resolver) keyword(path []string) string {
	if len(path) == 0 {
		return ""
	}
	joined := strings.ToLower(strings.Join(path, "/"))
	for _, k := range r.keywords {
		if strings.Contains(joined, strings.ToLower(k)) {
			return r.cfg.CrossRefKeywords[k]
		}
	}
	return ""
}

// Prefix returns the first n characters of the sanitized, upper-cased
// identifier. ok is false when the identifier is shorter than n.
func Prefix(pn string, n int) (string, bool) {
	s := Sanitize(pn)
	if len(s) < n {
		return "", false
	}
	return s[:n], true
}

// Sanitize upper-cases pn and drops every character that is not an ASCII
// letter or digit.
func Sanitize(pn string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(pn) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func normalizePath(p string) string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
