package scraper

import (
	"bytes"
	"net/http"

	"github.com/tidwall/gjson"
)

// Document is the body of a vendor reply. The zero Document is the empty
// sentinel every degraded call returns; callers treat it as "no data".
type Document struct {
	Body   []byte
	Status int
	Header http.Header
}

// Empty reports whether the document carries no data.
func (d Document) Empty() bool {
	return len(bytes.TrimSpace(d.Body)) == 0
}

// JSON parses the body. A non-JSON body yields a Result that does not
// exist, so lookups on it come back empty.
func (d Document) JSON() gjson.Result {
	if !gjson.ValidBytes(d.Body) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(d.Body)
}
