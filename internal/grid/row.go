package grid

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field is one caption/value pair of a Row.
type Field struct {
	Name  string
	Value string
}

// Row is an ordered caption to value record. Field order is the vendor's
// column order followed by derived fields. Rows are values; With returns a
// modified copy.
type Row struct {
	fields []Field
}

// NewRow builds a row from fields. A repeated name overwrites the earlier
// value in its original position.
func NewRow(fields ...Field) Row {
	var r Row
	for _, f := range fields {
		r = r.set(f.Name, f.Value)
	}
	return r
}

// Get returns the value stored under name.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Keys returns the field names in order.
func (r Row) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Name
	}
	return keys
}

// Fields returns a copy of the fields in order.
func (r Row) Fields() []Field {
	cp := make([]Field, len(r.fields))
	copy(cp, r.fields)
	return cp
}

// Len returns the number of fields.
func (r Row) Len() int { return len(r.fields) }

// With returns a copy of r with name set to value. New names are appended.
func (r Row) With(name, value string) Row {
	return r.set(name, value)
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.fields))
	for _, f := range r.fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON renders the row as a JSON object preserving field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Row) set(name, value string) Row {
	out := make([]Field, len(r.fields), len(r.fields)+1)
	copy(out, r.fields)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return Row{fields: out}
		}
	}
	return Row{fields: append(out, Field{Name: name, Value: value})}
}

// IdentityKey normalizes an identity value for deduplication.
func IdentityKey(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// collector accumulates rows, dropping rows without identity and repeats of
// an identity already seen.
type collector struct {
	seen map[string]struct{}
	rows []Row
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{}), rows: []Row{}}
}

func (c *collector) add(identity string, r Row) bool {
	key := IdentityKey(identity)
	if key == "" {
		return false
	}
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.rows = append(c.rows, r)
	return true
}
