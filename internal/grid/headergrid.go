package grid

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultIdentity is the identity caption of header grids.
const DefaultIdentity = "Part Number"

// HeaderGrid parses JSON documents carrying a Result.header array of
// "field:Caption:..." strings and a Result.data.products array whose Value
// arrays run parallel to the header.
type HeaderGrid struct {
	// Section is an optional path to the grid inside the document.
	Section string
	// Identity lists captions that identify a row; the first non-blank wins.
	Identity []string
	// DetailURL, when set, derives a link appended as LinkField.
	DetailURL func(identity string) string
	// LinkField defaults to "url".
	LinkField string
}

func (g HeaderGrid) path(p string) string {
	if g.Section == "" {
		return p
	}
	return g.Section + "." + p
}

// Parse implements Parser.
func (g HeaderGrid) Parse(doc []byte) []Row {
	out := newCollector()
	if !gjson.ValidBytes(doc) {
		return out.rows
	}
	root := gjson.ParseBytes(doc)
	header := root.Get(g.path("Result.header"))
	products := root.Get(g.path("Result.data.products"))
	if !header.IsArray() || !products.IsArray() {
		return out.rows
	}

	captions := make([]string, 0, len(header.Array()))
	for _, h := range header.Array() {
		captions = append(captions, headerCaption(h.String()))
	}

	identity := g.Identity
	if len(identity) == 0 {
		identity = []string{DefaultIdentity}
	}
	link := g.LinkField
	if link == "" {
		link = "url"
	}

	products.ForEach(func(_, p gjson.Result) bool {
		values := p.Get("Value").Array()
		var fields []Field
		for i, caption := range captions {
			if i >= len(values) || caption == "" {
				continue
			}
			cell := CleanCell(values[i].String())
			if cell == "" {
				continue
			}
			fields = append(fields, Field{Name: caption, Value: cell})
		}
		row := NewRow(fields...)

		var id string
		for _, c := range identity {
			if v, ok := row.Get(c); ok && strings.TrimSpace(v) != "" {
				id = v
				break
			}
		}
		if id != "" && g.DetailURL != nil {
			if u := g.DetailURL(id); u != "" {
				row = row.With(link, u)
			}
		}
		out.add(id, row)
		return true
	})
	return out.rows
}

// headerCaption returns the second colon-delimited segment of a header
// entry, or the whole entry when it has none.
func headerCaption(h string) string {
	parts := strings.Split(h, ":")
	if len(parts) < 2 {
		return strings.TrimSpace(h)
	}
	return strings.TrimSpace(parts[1])
}
