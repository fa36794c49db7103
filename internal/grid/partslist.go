package grid

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// PartsList parses documents listing parts under "detectedUniqueParts",
// each with a display part number and named parameter value lists.
type PartsList struct {
	// Identity is the caption given to the part number; defaults to "MPN".
	Identity string
}

// Parse implements Parser.
func (p PartsList) Parse(doc []byte) []Row {
	out := newCollector()
	if !gjson.ValidBytes(doc) {
		return out.rows
	}
	parts := gjson.GetBytes(doc, "detectedUniqueParts")
	if !parts.IsArray() {
		return out.rows
	}
	identity := p.Identity
	if identity == "" {
		identity = "MPN"
	}

	parts.ForEach(func(_, part gjson.Result) bool {
		id := strings.TrimSpace(part.Get("displayPn").String())
		fields := []Field{
			{Name: identity, Value: id},
			{Name: "obsolete", Value: strconv.FormatBool(part.Get("obsolete").Bool())},
			{Name: "rohsExceptions", Value: strconv.FormatBool(part.Get("hasRoHSExceptions").Bool())},
		}
		part.Get("parameterValues").ForEach(func(_, param gjson.Result) bool {
			name := strings.TrimSpace(param.Get("parameterName").String())
			if name == "" {
				return true
			}
			var values []string
			param.Get("parameterValues").ForEach(func(_, v gjson.Result) bool {
				if fv := strings.TrimSpace(v.Get("formattedValue").String()); fv != "" {
					values = append(values, fv)
				}
				return true
			})
			if len(values) > 0 {
				fields = append(fields, Field{Name: name, Value: strings.Join(values, ", ")})
			}
			return true
		})
		out.add(id, NewRow(fields...))
		return true
	})
	return out.rows
}
