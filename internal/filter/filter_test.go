package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		text string
	}{
		{"string", `"C0G"`, KindScalar, "C0G"},
		{"number keeps literal", `10.5`, KindScalar, "10.5"},
		{"bool", `true`, KindScalar, "true"},
		{"range", `{"min":10,"max":125}`, KindRange, ""},
		{"list", `["C0G","X7R"]`, KindList, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, v.Kind())
			}
			if v.Text() != tt.text {
				t.Errorf("expected text %q, got %q", tt.text, v.Text())
			}
		})
	}
}

func TestParse_RangeBounds(t *testing.T) {
	v, err := Parse([]byte(`{"min":10}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lo, hi := v.Bounds()
	if s, ok := lo.Get(); !ok || s != "10" {
		t.Errorf("expected min 10, got %q (%v)", s, ok)
	}
	if _, ok := hi.Get(); ok {
		t.Errorf("expected open max")
	}

	v, err = Parse([]byte(`{"min":null,"max":""}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Empty() {
		t.Errorf("expected empty range, got %s", v)
	}
}

func TestParse_InvalidShapes(t *testing.T) {
	for _, raw := range []string{`null`, `{"foo":1}`, `[{"a":1}]`, `{"min":[1]}`, `{`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidShape) {
			t.Errorf("%s: expected ErrInvalidShape, got %v", raw, err)
		}
	}
}

func TestParseSet(t *testing.T) {
	set, err := ParseSet([]byte(`{"capacitance":{"min":10,"max":125},"characteristic":["C0G","X7R"],"mpn":"GRM"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"capacitance", "characteristic", "mpn"}, set.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"C0G", "X7R"}, set["characteristic"].Items()); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	rest := set.Without("mpn")
	if _, ok := rest["mpn"]; ok {
		t.Errorf("expected mpn removed")
	}
	if _, ok := set["mpn"]; !ok {
		t.Errorf("Without must not modify the receiver")
	}

	if _, err := ParseSet([]byte(`{"bad":null}`)); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape, got %v", err)
	}
	if _, err := ParseSet([]byte(`[1,2]`)); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape for non-object, got %v", err)
	}
}

func TestConstructors(t *testing.T) {
	if Number(100).Text() != "100" {
		t.Errorf("expected 100, got %s", Number(100).Text())
	}
	if Number(0.25).Text() != "0.25" {
		t.Errorf("expected 0.25, got %s", Number(0.25).Text())
	}
	if (Value{}).Kind() != KindInvalid {
		t.Errorf("zero Value must be invalid")
	}
	items := []string{"a", "b"}
	l := List(items...)
	items[0] = "z"
	if l.Items()[0] != "a" {
		t.Errorf("List must copy its input")
	}
}
