package filter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidShape is returned when a filter value is neither a scalar, a
// {min,max} range nor a list of scalars.
var ErrInvalidShape = errors.New("filter: invalid value shape")

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindRange
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindRange:
		return "range"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Bound is one optional end of a Range.
type Bound struct {
	text string
	set  bool
}

// Open is the absent bound.
var Open = Bound{}

// Text returns a bound holding s.
func Text(s string) Bound { return Bound{text: s, set: true} }

// Num returns a bound holding f in its shortest decimal form.
func Num(f float64) Bound { return Bound{text: formatNumber(f), set: true} }

// Get returns the bound text and whether it is present.
func (b Bound) Get() (string, bool) { return b.text, b.set }

// Value is a single filter criterion. The zero Value is invalid; build one
// with Scalar, Number, Range or List.
type Value struct {
	kind  Kind
	text  string
	min   Bound
	max   Bound
	items []string
}

// Scalar returns a string-valued criterion.
func Scalar(s string) Value { return Value{kind: KindScalar, text: s} }

// Number returns a numeric criterion.
func Number(f float64) Value { return Value{kind: KindScalar, text: formatNumber(f)} }

// Range returns a {min,max} criterion. Either bound may be Open.
func Range(lo, hi Bound) Value { return Value{kind: KindRange, min: lo, max: hi} }

// List returns a multi-select criterion. Each element is OR'd by the vendor.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Text returns the scalar text. It is empty for non-scalar values.
func (v Value) Text() string { return v.text }

// Bounds returns the range ends.
func (v Value) Bounds() (lo, hi Bound) { return v.min, v.max }

// Empty reports whether a range has neither bound.
func (v Value) Empty() bool {
	switch v.kind {
	case KindRange:
		return !v.min.set && !v.max.set
	case KindList:
		return len(v.items) == 0
	}
	return false
}

// Items returns a copy of the list elements.
func (v Value) Items() []string {
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.text
	case KindRange:
		return v.min.text + ".." + v.max.text
	case KindList:
		return "[" + strings.Join(v.items, ",") + "]"
	}
	return "<invalid>"
}

// Set maps a filter key (caption or field name) to its criterion.
type Set map[string]Value

// Keys returns the keys of s in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Without returns a copy of s lacking the named keys.
func (s Set) Without(names ...string) Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// Parse decodes one loosely typed JSON value: a string, number or boolean
// becomes a scalar, an object with "min" and/or "max" becomes a range and an
// array of scalars becomes a list.
func Parse(raw []byte) (Value, error) {
	if !gjson.ValidBytes(raw) {
		return Value{}, fmt.Errorf("%w: malformed JSON", ErrInvalidShape)
	}
	return fromResult(gjson.ParseBytes(raw))
}

// ParseSet decodes a JSON object of key to loosely typed value.
func ParseSet(raw []byte) (Set, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidShape)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: filters must be an object", ErrInvalidShape)
	}
	set := make(Set)
	var perr error
	root.ForEach(func(key, val gjson.Result) bool {
		v, err := fromResult(val)
		if err != nil {
			perr = fmt.Errorf("filter %q: %w", key.String(), err)
			return false
		}
		set[key.String()] = v
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return set, nil
}

func fromResult(r gjson.Result) (Value, error) {
	switch {
	case r.Type == gjson.String:
		return Scalar(r.Str), nil
	case r.Type == gjson.Number:
		return Value{kind: KindScalar, text: r.Raw}, nil
	case r.Type == gjson.True || r.Type == gjson.False:
		return Scalar(strconv.FormatBool(r.Bool())), nil
	case r.IsArray():
		var items []string
		for _, el := range r.Array() {
			s, ok := scalarText(el)
			if !ok {
				return Value{}, fmt.Errorf("%w: list element %s", ErrInvalidShape, el.Raw)
			}
			items = append(items, s)
		}
		return List(items...), nil
	case r.IsObject():
		minR, maxR := r.Get("min"), r.Get("max")
		if !minR.Exists() && !maxR.Exists() {
			return Value{}, fmt.Errorf("%w: object without min or max", ErrInvalidShape)
		}
		lo, err := boundOf(minR)
		if err != nil {
			return Value{}, err
		}
		hi, err := boundOf(maxR)
		if err != nil {
			return Value{}, err
		}
		return Range(lo, hi), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrInvalidShape, r.Type)
}

func boundOf(r gjson.Result) (Bound, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return Open, nil
	}
	s, ok := scalarText(r)
	if !ok {
		return Open, fmt.Errorf("%w: range bound %s", ErrInvalidShape, r.Raw)
	}
	if s == "" {
		return Open, nil
	}
	return Text(s), nil
}

func scalarText(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return r.Str, true
	case gjson.Number:
		return r.Raw, true
	case gjson.True, gjson.False:
		return strconv.FormatBool(r.Bool()), true
	}
	return "", false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
