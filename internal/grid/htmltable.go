package grid

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// HTMLTable parses JSON documents that embed an HTML table fragment under
// "results" and describe its columns under "columns" as
// {column_order, column_name} pairs.
type HTMLTable struct {
	// BaseURL resolves relative links.
	BaseURL string
	// HeadRows and TailRows decorative rows are skipped at the top and the
	// bottom of the table.
	HeadRows int
	TailRows int
	// LeadCols and TailCols decorative cells are skipped on each row.
	LeadCols int
	TailCols int
	// OrderStep maps a cell index to its column_order (index * OrderStep).
	OrderStep int
	// Identity is the caption of the hyperlink-bearing identity column.
	Identity string
	// Document is the caption of the document-link column.
	Document string
	// LinkField receives the identity column's absolute link.
	LinkField string
}

// Parse implements Parser.
func (t HTMLTable) Parse(doc []byte) []Row {
	out := newCollector()
	if !gjson.ValidBytes(doc) {
		return out.rows
	}
	root := gjson.ParseBytes(doc)
	fragment := root.Get("results").String()
	if strings.TrimSpace(fragment) == "" {
		return out.rows
	}

	captions := make(map[int]string)
	root.Get("columns").ForEach(func(_, c gjson.Result) bool {
		captions[int(c.Get("column_order").Int())] = c.Get("column_name").String()
		return true
	})

	if !strings.Contains(strings.ToLower(fragment), "<table") {
		fragment = "<table>" + fragment + "</table>"
	}
	page, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return out.rows
	}

	step := t.OrderStep
	if step <= 0 {
		step = 1
	}
	link := t.LinkField
	if link == "" {
		link = "url"
	}

	trs := page.Find("tr")
	last := trs.Length() - t.TailRows
	trs.Each(func(idx int, tr *goquery.Selection) {
		if idx < t.HeadRows || idx >= last {
			return
		}
		tds := tr.Find("td")
		end := tds.Length() - t.TailCols
		if end <= t.LeadCols {
			return
		}

		var fields []Field
		var id, href string
		for col := t.LeadCols; col < end; col++ {
			td := tds.Eq(col)
			caption, ok := captions[col*step]
			if !ok {
				caption = "col_" + strconv.Itoa(col)
			}
			switch {
			case t.Identity != "" && strings.EqualFold(caption, t.Identity):
				a := td.Find("a[href]").First()
				if a.Length() > 0 {
					id = collapse(a.Text())
					h, _ := a.Attr("href")
					href = t.absolute(h)
				} else {
					id = collapse(td.Text())
				}
				if id != "" {
					fields = append(fields, Field{Name: caption, Value: id})
				}
			case t.Document != "" && strings.EqualFold(caption, t.Document):
				a := td.Find(`a[href$=".pdf"]`).First()
				if a.Length() == 0 {
					a = td.Find("a[href]").First()
				}
				if h, ok := a.Attr("href"); ok && h != "" {
					fields = append(fields, Field{Name: caption, Value: t.absolute(h)})
				}
			default:
				if v := collapse(td.Text()); v != "" {
					fields = append(fields, Field{Name: caption, Value: v})
				}
			}
		}

		row := NewRow(fields...)
		if href != "" {
			row = row.With(link, href)
		}
		out.add(id, row)
	})
	return out.rows
}

func (t HTMLTable) absolute(href string) string {
	href = strings.TrimSpace(href)
	if t.BaseURL == "" {
		return href
	}
	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
