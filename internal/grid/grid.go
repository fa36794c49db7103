// Package grid turns vendor result payloads into ordered rows.
package grid

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parser normalizes one raw response document. Implementations never panic
// and never return nil; a structural mismatch yields an empty slice.
type Parser interface {
	Parse(doc []byte) []Row
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(doc []byte) []Row

func (f ParserFunc) Parse(doc []byte) []Row {
	if f == nil {
		return []Row{}
	}
	return f(doc)
}

// CleanCell strips markup from a cell value. Line breaks become ", " and
// runs of whitespace collapse to a single space.
func CleanCell(s string) string {
	if !strings.ContainsRune(s, '<') && !strings.ContainsRune(s, '&') {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("br").ReplaceWithHtml(", ")
	out := collapse(doc.Text())
	return strings.Trim(out, ", ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
