// Package encoder renders filter sets into vendor query clauses.
//
// A clause is "field<sep>value". A range renders as "field<sep>min|max"
// with an empty segment for a missing bound and nothing at all when both
// bounds are missing. A list renders one clause per element so the vendor
// ORs the choices instead of matching a comma-joined literal.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/FranksOps/partscout/internal/filter"
)

// ErrInvalidFilter is returned for a value of no known shape.
var ErrInvalidFilter = errors.New("encoder: invalid filter")

// ErrUnknownGrammar is returned by ParseGrammar for an unnamed syntax.
var ErrUnknownGrammar = errors.New("encoder: unknown grammar")

// Grammar is a vendor's clause syntax.
type Grammar struct {
	// Param is the repeated query or form parameter, e.g. "scon".
	Param string
	// Sep separates field and value.
	Sep string
}

var (
	// Semicolon is the "field;value" grammar.
	Semicolon = Grammar{Param: "scon", Sep: ";"}
	// Colon is the "field:value" grammar.
	Colon = Grammar{Param: "scon", Sep: ":"}
)

// ParseGrammar maps a configured name ("semicolon" or "colon", or the
// separator itself) to its Grammar.
func ParseGrammar(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "semicolon", ";":
		return Semicolon, nil
	case "colon", ":":
		return Colon, nil
	}
	return Grammar{}, fmt.Errorf("%w: %q", ErrUnknownGrammar, name)
}

// FieldDef maps a human caption to a vendor field.
type FieldDef struct {
	Caption string `mapstructure:"caption" json:"caption"`
	Field   string `mapstructure:"field" json:"field"`
	// Type is informational: range, multi or literal.
	Type string `mapstructure:"type" json:"type,omitempty"`
}

// Clause is one encoded criterion.
type Clause struct {
	Caption string
	Field   string
	Value   string
}

// Query is the encoded form of a filter set.
type Query struct {
	Grammar Grammar
	Clauses []Clause
	// Skipped lists captions that had no field mapping.
	Skipped []string
}

// Strings returns each clause rendered with the grammar separator.
func (q Query) Strings() []string {
	out := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		out[i] = c.Field + q.Grammar.Sep + c.Value
	}
	return out
}

// Values renders the clauses as one repeated parameter.
func (q Query) Values() url.Values {
	v := url.Values{}
	for _, s := range q.Strings() {
		v.Add(q.Grammar.Param, s)
	}
	return v
}

// AddTo appends the clauses to v.
func (q Query) AddTo(v url.Values) {
	for _, s := range q.Strings() {
		v.Add(q.Grammar.Param, s)
	}
}

// Composite renders the clauses as a single string joined by sep.
func (q Query) Composite(sep string) string {
	return strings.Join(q.Strings(), sep)
}

// Merge returns q with o's clauses and skipped captions appended.
func (q Query) Merge(o Query) Query {
	out := Query{Grammar: q.Grammar}
	out.Clauses = append(append(out.Clauses, q.Clauses...), o.Clauses...)
	out.Skipped = append(append(out.Skipped, q.Skipped...), o.Skipped...)
	return out
}

// ParseClause splits an encoded clause back into field and value.
func ParseClause(s, sep string) (field, value string, ok bool) {
	i := strings.Index(s, sep)
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}

// Classifier turns free text into criteria keyed by caption. A nil set
// means no answer.
type Classifier interface {
	Classify(ctx context.Context, text string, captions []string) filter.Set
}

// Config configures one vendor's encoder.
type Config struct {
	Vendor  string
	Grammar Grammar
	// Fields holds the caption table per category, keyed case-insensitively.
	// A category without a table passes keys through as field names.
	Fields map[string][]FieldDef
	Logger *slog.Logger
}

// Encoder is safe for concurrent use.
type Encoder struct {
	cfg Config
	ai  Classifier
	log *slog.Logger
}

// New builds an encoder. ai may be nil, which disables details.
func New(cfg Config, ai Classifier) *Encoder {
	if cfg.Grammar.Param == "" {
		cfg.Grammar.Param = Semicolon.Param
	}
	if cfg.Grammar.Sep == "" {
		cfg.Grammar.Sep = Semicolon.Sep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fields := make(map[string][]FieldDef, len(cfg.Fields))
	for k, defs := range cfg.Fields {
		fields[strings.ToLower(k)] = defs
	}
	cfg.Fields = fields
	return &Encoder{cfg: cfg, ai: ai, log: cfg.Logger.With("component", "encoder", "vendor", cfg.Vendor)}
}

// Captions lists the known captions of category.
func (e *Encoder) Captions(category string) []string {
	defs := e.cfg.Fields[strings.ToLower(category)]
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Caption)
	}
	return out
}

// Encode renders set for category. Keys are processed in sorted order.
// Unmappable captions are skipped; a value of no known shape fails the
// whole request.
func (e *Encoder) Encode(category string, set filter.Set) (Query, error) {
	q := Query{Grammar: e.cfg.Grammar}
	defs, hasTable := e.cfg.Fields[strings.ToLower(category)]

	for _, caption := range set.Keys() {
		v := set[caption]
		if v.Kind() == filter.KindInvalid {
			return Query{}, fmt.Errorf("%w: %q has no value shape", ErrInvalidFilter, caption)
		}
		field := caption
		if hasTable {
			var ok bool
			if field, ok = lookup(defs, caption); !ok {
				e.log.Warn("no field mapping for caption, ignored", "category", category, "caption", caption)
				q.Skipped = append(q.Skipped, caption)
				continue
			}
		}
		for _, val := range render(v) {
			q.Clauses = append(q.Clauses, Clause{Caption: caption, Field: field, Value: val})
		}
	}
	return q, nil
}

// EncodeDetails hands free text to the classifier and encodes its answer
// like any other filter set. No classifier or no answer yields an empty
// query.
func (e *Encoder) EncodeDetails(ctx context.Context, category, text string) (Query, error) {
	if e.ai == nil || strings.TrimSpace(text) == "" {
		return Query{Grammar: e.cfg.Grammar}, nil
	}
	set := e.ai.Classify(ctx, text, e.Captions(category))
	if len(set) == 0 {
		e.log.Info("details produced no criteria", "category", category)
		return Query{Grammar: e.cfg.Grammar}, nil
	}
	return e.Encode(category, set)
}

// render returns the clause values of v.
func render(v filter.Value) []string {
	switch v.Kind() {
	case filter.KindScalar:
		return []string{v.Text()}
	case filter.KindRange:
		lo, hi := v.Bounds()
		from, fromOK := lo.Get()
		to, toOK := hi.Get()
		if !fromOK && !toOK {
			return nil
		}
		return []string{from + "|" + to}
	case filter.KindList:
		return v.Items()
	}
	return nil
}

// lookup resolves caption by exact caption, then by field name, then by
// case-folded word set.
func lookup(defs []FieldDef, caption string) (string, bool) {
	for _, d := range defs {
		if d.Caption == caption {
			return d.Field, true
		}
	}
	for _, d := range defs {
		if d.Field == caption {
			return d.Field, true
		}
	}
	want := tokens(caption)
	if len(want) == 0 {
		return "", false
	}
	for _, d := range defs {
		if slices.Equal(want, tokens(d.Caption)) {
			return d.Field, true
		}
	}
	return "", false
}

// tokens returns the sorted, de-duplicated lower-case words of s.
func tokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	slices.Sort(words)
	return slices.Compact(words)
}
