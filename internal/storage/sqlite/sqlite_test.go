package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
)

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_SaveQuery(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	want := &storage.Exchange{
		ID:           "ex-1",
		Vendor:       "tdk",
		Operation:    "warmup",
		Method:       "GET",
		URL:          "https://product.tdk.com/en/search/list",
		Status:       200,
		Duration:     150 * time.Millisecond,
		Bytes:        4096,
		DetectedBot:  true,
		DetectionSrc: "Akamai",
		CreatedAt:    now,
	}
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("Failed to save exchange: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{Vendor: "tdk"})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != want.ID || got.Vendor != want.Vendor || got.Operation != want.Operation {
		t.Errorf("identity mismatch: got %+v", got)
	}
	if got.URL != want.URL || got.Method != want.Method || got.Status != want.Status {
		t.Errorf("request mismatch: got %+v", got)
	}
	if got.Duration != want.Duration || got.Bytes != want.Bytes {
		t.Errorf("size mismatch: got %v/%d", got.Duration, got.Bytes)
	}
	if !got.DetectedBot || got.DetectionSrc != "Akamai" || got.Error != "" {
		t.Errorf("detection mismatch: got %+v", got)
	}
	if got.CreatedAt.Unix() != want.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", want.CreatedAt, got.CreatedAt)
	}
}

func TestSQLiteBackend_Filters(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, v := range []string{"murata", "murata", "tdk", "kemet"} {
		e := storage.NewExchange(v, "search", "GET", "https://example.com")
		e.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		e.DetectedBot = v == "tdk"
		if err := b.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 rows, got %d (%v)", len(all), err)
	}
	if all[0].Vendor != "kemet" {
		t.Errorf("expected newest first, got %s", all[0].Vendor)
	}

	yes := true
	bots, _ := b.Query(ctx, storage.Filter{DetectedBot: &yes})
	if len(bots) != 1 || bots[0].Vendor != "tdk" {
		t.Errorf("expected only the tdk row, got %v", bots)
	}

	since := now.Add(90 * time.Second)
	recent, _ := b.Query(ctx, storage.Filter{Since: &since})
	if len(recent) != 2 {
		t.Errorf("expected 2 recent rows, got %d", len(recent))
	}

	page, _ := b.Query(ctx, storage.Filter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].Vendor != "tdk" {
		t.Errorf("unexpected page %v", page)
	}

	tail, _ := b.Query(ctx, storage.Filter{Offset: 3})
	if len(tail) != 1 {
		t.Errorf("expected offset without limit to return 1 row, got %d", len(tail))
	}
}
