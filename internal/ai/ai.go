// Package ai talks to the chat-completion collaborator used when the
// deterministic resolution stages have no answer: suggesting a vendor
// category for a part number and turning free-text requirements into
// filter criteria.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/partscout/internal/filter"
)

// CategoryQuery asks for the vendor category code of one part number.
type CategoryQuery struct {
	Vendor     string
	PartNumber string
	// Endpoint is the search URL the code is a parameter of.
	Endpoint string
	// Example is a valid code shown to the model.
	Example string
	// Allowed lists the codes the model may choose from, when known.
	Allowed []string
}

// DetailsQuery asks for filter criteria extracted from free text.
type DetailsQuery struct {
	Vendor string
	Text   string
	// Captions are the filter captions of the target category.
	Captions []string
}

// Classifier is the raw collaborator. Errors are returned as-is; Guarded
// turns them into non-answers.
type Classifier interface {
	SuggestCategory(ctx context.Context, q CategoryQuery) (string, error)
	Classify(ctx context.Context, q DetailsQuery) (filter.Set, error)
}

func categoryPrompt(q CategoryQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert on %s's API. Given the part number %q, return ONLY the exact value of the category query parameter you would use on %s. ",
		q.Vendor, q.PartNumber, q.Endpoint)
	if q.Example != "" {
		fmt.Fprintf(&b, "Example: %s ", q.Example)
	}
	if len(q.Allowed) > 0 {
		fmt.Fprintf(&b, "Choose one of: %s. ", strings.Join(q.Allowed, ", "))
	}
	b.WriteString("Do not include any extra text or punctuation.")
	return b.String()
}

func detailsPrompt(q DetailsQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You extract electronic component search filters for %s. ", q.Vendor)
	b.WriteString("Return ONLY a flat JSON object mapping a filter caption to its value. ")
	b.WriteString(`Use a string or number for a single value, an array for several accepted values, and {"min":..,"max":..} for a range (omit a missing bound). `)
	if len(q.Captions) > 0 {
		fmt.Fprintf(&b, "Use these captions where they apply: %s. ", strings.Join(q.Captions, "; "))
	}
	b.WriteString("Leave out anything you cannot map.")
	return b.String()
}

// cleanCode reduces a model answer to a bare code: the first line, without
// quotes, backticks or trailing punctuation.
func cleanCode(answer string) string {
	s := strings.TrimSpace(answer)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	for {
		t := strings.TrimRight(strings.Trim(s, " \t\"'`"), ".,;:!")
		if t == s {
			break
		}
		s = t
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	return s
}

// stripFence removes a ```json fence some models wrap objects in.
func stripFence(answer string) string {
	s := strings.TrimSpace(answer)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
