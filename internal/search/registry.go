package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownVendor is returned for a vendor no engine is registered for.
var ErrUnknownVendor = errors.New("search: unknown vendor")

// Registry holds one engine per vendor, looked up case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry returns a registry holding engines.
func NewRegistry(engines ...*Engine) *Registry {
	r := &Registry{engines: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		r.Add(e)
	}
	return r
}

// Add registers e under its vendor name, replacing any previous engine.
func (r *Registry) Add(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[strings.ToLower(e.Vendor())] = e
}

// Get returns the engine for vendor.
func (r *Registry) Get(vendor string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[strings.ToLower(strings.TrimSpace(vendor))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
	return e, nil
}

// Vendors lists the registered vendor names.
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for k := range r.engines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Close closes every engine.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.engines {
		e.Close()
	}
}
