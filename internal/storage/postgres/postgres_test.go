package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if PARTSCOUT_TEST_PG_DSN is set
	dsn := os.Getenv("PARTSCOUT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: PARTSCOUT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	e := storage.NewExchange("kemet", "search", "POST", "https://www.kemet.com/en/us/search.products.json")
	e.Status = 200
	e.Bytes = 812
	e.Duration = 42 * time.Millisecond
	if err := b.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save exchange: %v", err)
	}

	since := e.CreatedAt.Add(-time.Second)
	results, err := b.Query(ctx, storage.Filter{Vendor: "kemet", Since: &since, Limit: 50})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}

	var found *storage.Exchange
	for _, r := range results {
		if r.ID == e.ID {
			found = r
		}
	}
	if found == nil {
		t.Fatalf("saved exchange %s not returned", e.ID)
	}
	if found.Status != 200 || found.Bytes != 812 || found.Duration != e.Duration || found.Method != "POST" {
		t.Errorf("unexpected exchange %+v", found)
	}
	if found.CreatedAt.Unix() != e.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", e.CreatedAt, found.CreatedAt)
	}
}
