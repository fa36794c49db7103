package useragent

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPool_GetSequential(t *testing.T) {
	p := NewPool([]string{"A", " ", "B", "C"})
	for i, want := range []string{"A", "B", "C", "A"} {
		if got := p.GetSequential(); got != want {
			t.Errorf("call %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestPool_Default(t *testing.T) {
	p := NewPool([]string{"", "  "})
	if diff := cmp.Diff(DefaultPool, p.GetAll()); diff != "" {
		t.Errorf("expected default pool (-want +got):\n%s", diff)
	}
}

func TestPool_GetRandom(t *testing.T) {
	p := NewPool([]string{"A", "B"})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[p.GetRandom()] = true
	}
	if !seen["A"] || !seen["B"] || len(seen) != 2 {
		t.Errorf("expected both A and B, saw %v", seen)
	}
}

func TestPool_Concurrent(t *testing.T) {
	p := NewPool([]string{"X", "Y", "Z"})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := map[string]int{}
			for j := 0; j < 300; j++ {
				local[p.GetSequential()]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, k := range []string{"X", "Y", "Z"} {
		if counts[k] != 3000 {
			t.Errorf("expected 3000 hits for %s, got %d", k, counts[k])
		}
	}
}

func TestPool_NilAndEmpty(t *testing.T) {
	var nilPool *Pool
	if got := nilPool.GetSequential(); got != "" {
		t.Errorf("expected empty string from nil pool, got %s", got)
	}
	p := &Pool{}
	if got := p.GetRandom(); got != "" {
		t.Errorf("expected empty string on empty random, got %s", got)
	}
}

func TestClientHints(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want map[string]string
	}{
		{
			name: "chrome windows",
			ua:   DefaultPool[0],
			want: map[string]string{
				"Sec-CH-UA":          `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
				"Sec-CH-UA-Mobile":   "?0",
				"Sec-CH-UA-Platform": `"Windows"`,
			},
		},
		{
			name: "chrome mac",
			ua:   DefaultPool[3],
			want: map[string]string{
				"Sec-CH-UA":          `"Google Chrome";v="133", "Chromium";v="133", "Not_A Brand";v="24"`,
				"Sec-CH-UA-Mobile":   "?0",
				"Sec-CH-UA-Platform": `"macOS"`,
			},
		},
		{
			name: "edge",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
			want: map[string]string{
				"Sec-CH-UA":          `"Microsoft Edge";v="132", "Chromium";v="132", "Not_A Brand";v="24"`,
				"Sec-CH-UA-Mobile":   "?0",
				"Sec-CH-UA-Platform": `"Windows"`,
			},
		},
		{
			name: "firefox",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ClientHints(tt.ua)); diff != "" {
				t.Errorf("ClientHints mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
