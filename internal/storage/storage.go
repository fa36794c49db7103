package storage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Exchange is the audit record of one vendor HTTP call. Search results are
// never stored; only the fact that a call happened and how it went.
type Exchange struct {
	ID           string        `json:"id"`
	Vendor       string        `json:"vendor"`
	Operation    string        `json:"operation"` // e.g. "search", "warmup", "discovery"
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	Status       int           `json:"status"`
	Duration     time.Duration `json:"duration"`
	Bytes        int64         `json:"bytes"`
	DetectedBot  bool          `json:"detected_bot"`
	DetectionSrc string        `json:"detection_src,omitempty"` // e.g. "Akamai", "Cloudflare"
	Error        string        `json:"error,omitempty"`         // non-empty if the call degraded
	CreatedAt    time.Time     `json:"created_at"`
}

// NewExchange starts an audit record stamped with a fresh id and the
// current UTC time.
func NewExchange(vendor, operation, method, url string) *Exchange {
	return &Exchange{
		ID:        uuid.New().String(),
		Vendor:    vendor,
		Operation: operation,
		Method:    method,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
}

// Filter allows querying for specific exchanges.
type Filter struct {
	Vendor      string
	Operation   string
	DetectedBot *bool
	Since       *time.Time
	Limit       int
	Offset      int
}

// Match reports whether e passes every condition of f. Limit and Offset are
// not conditions.
func (f Filter) Match(e *Exchange) bool {
	if f.Vendor != "" && e.Vendor != f.Vendor {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.DetectedBot != nil && e.DetectedBot != *f.DetectedBot {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend defines the interface for storing and querying exchanges.
// Query returns newest first.
type Backend interface {
	Save(ctx context.Context, e *Exchange) error
	Query(ctx context.Context, filter Filter) ([]*Exchange, error)
	Close() error
}

// Page orders matched exchanges newest first and applies Offset and Limit.
// File-backed stores use it after filtering in memory. It never returns nil.
func Page(matched []*Exchange, f Filter) []*Exchange {
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []*Exchange{}
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	if matched == nil {
		return []*Exchange{}
	}
	return matched
}
