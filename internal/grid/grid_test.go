package grid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const murataDoc = `{
  "Result": {
    "header": ["partnumber:Part Number:s", "capacitance:Capacitance:r", "ratedvoltage:Rated Voltage DC:r", "note:Note:s"],
    "data": {
      "products": [
        {"Value": ["GRM0115C1C100GE01#", "10pF", "16Vdc", "<b>AEC</b><br>Q200"]},
        {"Value": ["GRM0115C1C100GE01#", "99pF", "16Vdc", ""]},
        {"Value": ["", "1pF", "6.3Vdc", ""]},
        {"Value": ["GRM0115C1C120GE01#", "12pF"]}
      ]
    }
  }
}`

func TestHeaderGrid_Parse(t *testing.T) {
	g := HeaderGrid{
		DetailURL: func(id string) string { return "https://example.com/" + strings.TrimSuffix(id, "#") },
	}
	rows := g.Parse([]byte(murataDoc))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	want := []string{"Part Number", "Capacitance", "Rated Voltage DC", "Note", "url"}
	if diff := cmp.Diff(want, rows[0].Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := rows[0].Get("Capacitance"); v != "10pF" {
		t.Errorf("expected first duplicate to win, got %s", v)
	}
	if v, _ := rows[0].Get("Note"); v != "AEC, Q200" {
		t.Errorf("expected cleaned cell, got %q", v)
	}
	if _, ok := rows[1].Get("Note"); ok {
		t.Errorf("expected missing cell to be skipped")
	}
	if v, _ := rows[1].Get("url"); v != "https://example.com/GRM0115C1C120GE01" {
		t.Errorf("unexpected url %q", v)
	}
}

func TestHeaderGrid_Section(t *testing.T) {
	doc := `{"otherPsDispRest":` + murataDoc + `}`
	rows := HeaderGrid{Section: "otherPsDispRest"}.Parse([]byte(doc))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if _, ok := rows[0].Get("url"); ok {
		t.Errorf("expected no url without DetailURL")
	}
	if rows := (HeaderGrid{Section: "missing"}).Parse([]byte(doc)); rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil slice for missing section, got %v", rows)
	}
}

func TestParsers_NeverNil(t *testing.T) {
	parsers := map[string]Parser{
		"header": HeaderGrid{},
		"html":   HTMLTable{HeadRows: 2, LeadCols: 2},
		"parts":  PartsList{},
	}
	docs := []string{"", "not json", "{}", `{"results":""}`, `{"Result":{"header":"x"}}`, `[]`}
	for name, p := range parsers {
		for _, d := range docs {
			rows := p.Parse([]byte(d))
			if rows == nil {
				t.Errorf("%s: nil rows for %q", name, d)
			}
			if len(rows) != 0 {
				t.Errorf("%s: expected no rows for %q, got %d", name, d, len(rows))
			}
		}
	}
}

func tdkDoc(t *testing.T, body string) []byte {
	t.Helper()
	doc := map[string]any{
		"results": body,
		"columns": []map[string]any{
			{"column_order": 20, "column_name": "Part No."},
			{"column_order": 30, "column_name": "Capacitance"},
			{"column_order": 40, "column_name": "Catalog / Data Sheet"},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func tdkTable() HTMLTable {
	return HTMLTable{
		BaseURL:   "https://product.tdk.com",
		HeadRows:  2,
		LeadCols:  2,
		OrderStep: 10,
		Identity:  "Part No.",
		Document:  "Catalog / Data Sheet",
	}
}

func TestHTMLTable_Parse(t *testing.T) {
	body := `<tr><th>decor</th></tr><tr><td>x</td><td>y</td><td>head</td></tr>` +
		`<tr><td><input></td><td></td><td><a href="/en/search/productdetail?pn=C1005X5R">C1005X5R</a></td><td> 1 µF </td><td><a href="/info/c1005.pdf">pdf</a></td></tr>` +
		`<tr><td></td><td></td><td><a href="/dup">C1005X5R</a></td><td>2 µF</td><td></td></tr>` +
		`<tr><td></td><td></td><td></td><td>3 µF</td><td></td></tr>` +
		`<tr><td></td><td></td><td>CGA2B</td><td>4 µF</td><td></td></tr>`

	rows := tdkTable().Parse(tdkDoc(t, body))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	want := NewRow(
		Field{"Part No.", "C1005X5R"},
		Field{"Capacitance", "1 µF"},
		Field{"Catalog / Data Sheet", "https://product.tdk.com/info/c1005.pdf"},
		Field{"url", "https://product.tdk.com/en/search/productdetail?pn=C1005X5R"},
	)
	if diff := cmp.Diff(want.Fields(), rows[0].Fields()); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
	if v, _ := rows[1].Get("Part No."); v != "CGA2B" {
		t.Errorf("expected plain-text identity, got %q", v)
	}
	if _, ok := rows[1].Get("url"); ok {
		t.Errorf("expected no url for identity without link")
	}
}

func TestHTMLTable_OnlyDecorativeRows(t *testing.T) {
	body := `<tr><th>decor</th></tr><tr><td>a</td><td>b</td></tr>`
	rows := tdkTable().Parse(tdkDoc(t, body))
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", rows)
	}
}

func TestHTMLTable_TailRows(t *testing.T) {
	body := `<tr><th>decor</th></tr><tr><td>x</td></tr>` +
		`<tr><td></td><td></td><td>PN1</td><td>5 µF</td></tr>` +
		`<tr><td></td><td></td><td>PN2</td><td>6 µF</td></tr>` +
		`<tr><td></td><td></td><td>Showing 2 of 2</td><td></td></tr>`

	tbl := tdkTable()
	if rows := tbl.Parse(tdkDoc(t, body)); len(rows) != 3 {
		t.Fatalf("expected the footer row to parse without TailRows, got %d rows", len(rows))
	}
	tbl.TailRows = 1
	rows := tbl.Parse(tdkDoc(t, body))
	var got []string
	for _, r := range rows {
		v, _ := r.Get("Part No.")
		got = append(got, v)
	}
	if diff := cmp.Diff([]string{"PN1", "PN2"}, got); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLTable_TailCols(t *testing.T) {
	tbl := tdkTable()
	tbl.HeadRows = 0
	tbl.TailCols = 1
	body := `<tr><td></td><td></td><td>PN1</td><td>5 µF</td><td>trailing</td></tr>`
	rows := tbl.Parse(tdkDoc(t, body))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0].Get("Catalog / Data Sheet"); ok {
		t.Errorf("expected trailing column skipped")
	}
}

func TestPartsList_Parse(t *testing.T) {
	doc := `{"detectedUniqueParts":[
	  {"displayPn":"C0805C104K5RACTU","obsolete":false,"hasRoHSExceptions":true,
	   "parameterValues":[
	     {"parameterName":"Capacitance","parameterValues":[{"formattedValue":"100 nF"}]},
	     {"parameterName":"Packaging","parameterValues":[{"formattedValue":"Tape"},{"formattedValue":"Reel"}]},
	     {"parameterName":"","parameterValues":[{"formattedValue":"ignored"}]},
	     {"parameterName":"Empty","parameterValues":[]}
	   ]},
	  {"displayPn":"c0805c104k5ractu "},
	  {"displayPn":""}
	]}`
	rows := PartsList{}.Parse([]byte(doc))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := []string{"MPN", "obsolete", "rohsExceptions", "Capacitance", "Packaging"}
	if diff := cmp.Diff(want, rows[0].Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := rows[0].Get("Packaging"); v != "Tape, Reel" {
		t.Errorf("expected joined values, got %q", v)
	}
	if v, _ := rows[0].Get("rohsExceptions"); v != "true" {
		t.Errorf("expected rohsExceptions true, got %q", v)
	}
}

func TestRow_WithAndJSON(t *testing.T) {
	r := NewRow(Field{"b", "1"}, Field{"a", "2"})
	r2 := r.With("c", "3").With("b", "9")
	if v, _ := r.Get("b"); v != "1" {
		t.Errorf("With must not mutate the receiver")
	}
	b, err := json.Marshal(r2)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"b":"9","a":"2","c":"3"}` {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestCleanCell(t *testing.T) {
	cases := map[string]string{
		"plain":                  "plain",
		"  a   b ":               "a b",
		"1.0<br>2.0":             "1.0, 2.0",
		"<span>x</span><br/>":    "x",
		"A &amp; B":              "A & B",
		"<a href='#'>link</a> t": "link t",
	}
	for in, want := range cases {
		if got := CleanCell(in); got != want {
			t.Errorf("CleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}
