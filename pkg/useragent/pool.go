package useragent

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync/atomic"
)

// DefaultPool holds desktop Chrome User-Agents. Vendor sites gate their
// JSON endpoints on Chrome-shaped traffic, and the TLS fingerprint the
// fetcher presents is Chrome's, so the pool stays Chrome-only.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
}

// Pool represents a collection of User-Agents that can be retrieved sequentially or randomly.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. Blank entries are dropped; if
// nothing remains it falls back to DefaultPool.
func NewPool(uas []string) *Pool {
	copied := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua = strings.TrimSpace(ua); ua != "" {
			copied = append(copied, ua)
		}
	}
	if len(copied) == 0 {
		copied = append(copied, DefaultPool...)
	}
	return &Pool{uas: copied}
}

// GetSequential returns the next User-Agent in round-robin order.
// It is safe for concurrent use.
func (p *Pool) GetSequential() string {
	if p == nil || len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// GetRandom returns a random User-Agent from the pool using crypto/rand.
func (p *Pool) GetRandom() string {
	if p == nil || len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.GetSequential()
	}
	return p.uas[n.Int64()]
}

// GetAll returns a copy of all User-Agents currently in the pool.
func (p *Pool) GetAll() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}

var (
	chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)
	edgeVersion   = regexp.MustCompile(`Edg/(\d+)`)
)

// ClientHints derives the Sec-CH-UA header set a Chromium browser sends
// alongside ua. It returns nil for non-Chromium agents, which send none.
func ClientHints(ua string) map[string]string {
	m := chromeVersion.FindStringSubmatch(ua)
	if m == nil {
		return nil
	}
	major := m[1]
	brand := "Google Chrome"
	if e := edgeVersion.FindStringSubmatch(ua); e != nil {
		brand, major = "Microsoft Edge", e[1]
	}

	platform := "Windows"
	switch {
	case strings.Contains(ua, "Macintosh"):
		platform = "macOS"
	case strings.Contains(ua, "Android"):
		platform = "Android"
	case strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		platform = "Linux"
	}
	mobile := "?0"
	if strings.Contains(ua, "Mobile") {
		mobile = "?1"
	}

	return map[string]string{
		"Sec-CH-UA":          fmt.Sprintf(`"%s";v="%s", "Chromium";v="%s", "Not_A Brand";v="24"`, brand, major, m[1]),
		"Sec-CH-UA-Mobile":   mobile,
		"Sec-CH-UA-Platform": `"` + platform + `"`,
	}
}
