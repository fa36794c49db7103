// Package session holds the mutable per-engine state shared by every request
// to one vendor: handshake constants and the anti-automation cookie jar.
package session

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Context is safe for concurrent use. Constants start at their defaults and
// are replaced once discovered; cookies are last-writer-wins per name.
type Context struct {
	mu        sync.RWMutex
	defaults  map[string]string
	constants map[string]string
	cookies   map[string]string
}

// New returns a context whose constants fall back to defaults.
func New(defaults map[string]string) *Context {
	d := make(map[string]string, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Context{
		defaults:  d,
		constants: make(map[string]string),
		cookies:   make(map[string]string),
	}
}

// Constant returns the discovered value of name, or its default.
func (c *Context) Constant(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.constants[name]; ok {
		return v
	}
	return c.defaults[name]
}

// Discovered reports whether name was set by SetConstant.
func (c *Context) Discovered(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.constants[name]
	return ok
}

// SetConstant records a discovered constant. Blank values are ignored.
func (c *Context) SetConstant(name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	c.mu.Lock()
	c.constants[name] = value
	c.mu.Unlock()
}

// ConstantNames returns every known constant name in sorted order.
func (c *Context) ConstantNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.defaults)+len(c.constants))
	for k := range c.defaults {
		seen[k] = struct{}{}
	}
	for k := range c.constants {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PutCookie stores one cookie value.
func (c *Context) PutCookie(name, value string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.cookies[name] = value
	c.mu.Unlock()
}

// Cookie returns a stored cookie value.
func (c *Context) Cookie(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cookies[name]
	return v, ok
}

// SetCookies implements http.CookieJar. The jar is scoped to one vendor,
// so cookies are stored by name regardless of domain or path.
func (c *Context) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	for _, ck := range cookies {
		if ck == nil {
			continue
		}
		if ck.MaxAge < 0 {
			c.mu.Lock()
			delete(c.cookies, ck.Name)
			c.mu.Unlock()
			continue
		}
		c.PutCookie(ck.Name, ck.Value)
	}
}

// Cookies implements http.CookieJar and returns the whole jar sorted by
// name.
func (c *Context) Cookies(_ *url.URL) []*http.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.sortedNames()
	out := make([]*http.Cookie, len(names))
	for i, k := range names {
		out[i] = &http.Cookie{Name: k, Value: c.cookies[k]}
	}
	return out
}

// CookieHeader renders the jar as a Cookie header value, sorted by name.
func (c *Context) CookieHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cookies) == 0 {
		return ""
	}
	names := c.sortedNames()
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = (&http.Cookie{Name: k, Value: c.cookies[k]}).String()
	}
	return strings.Join(parts, "; ")
}

// CookieNames returns the stored cookie names with the given prefix.
func (c *Context) CookieNames(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for k := range c.cookies {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Context) sortedNames() []string {
	names := make([]string, 0, len(c.cookies))
	for k := range c.cookies {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var _ http.CookieJar = (*Context)(nil)
