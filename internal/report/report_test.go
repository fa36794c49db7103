package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
	"github.com/google/go-cmp/cmp"
)

func sample() []*storage.Exchange {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*storage.Exchange{
		{Vendor: "murata", Operation: "mpn", Status: 200, Bytes: 300, Duration: 100 * time.Millisecond, CreatedAt: now},
		{Vendor: "murata", Operation: "discovery", Status: 200, Bytes: 100, Duration: 300 * time.Millisecond, CreatedAt: now.Add(time.Second)},
		{Vendor: "tdk", Operation: "warmup", Status: 403, DetectedBot: true, DetectionSrc: "Akamai", Error: "challenge", CreatedAt: now.Add(2 * time.Second)},
		{Vendor: "tdk", Operation: "mpn", Error: "timeout", CreatedAt: now.Add(-time.Second)},
	}
}

func TestGenerateSummary(t *testing.T) {
	s := GenerateSummary(sample())

	if s.TotalRequests != 4 || s.TotalDegraded != 2 || s.TotalDetections != 1 || s.TotalBytes != 400 {
		t.Errorf("unexpected totals %+v", s)
	}
	if diff := cmp.Diff(map[int]int{200: 2, 403: 1}, s.StatusCodes); diff != "" {
		t.Errorf("status codes mismatch (-want +got):\n%s", diff)
	}
	if s.DetectionsBySrc["Akamai"] != 1 {
		t.Errorf("expected one Akamai detection, got %v", s.DetectionsBySrc)
	}
	if s.Duration != 3*time.Second {
		t.Errorf("expected 3s span, got %v", s.Duration)
	}

	if len(s.Vendors) != 2 || s.Vendors[0].Vendor != "murata" || s.Vendors[1].Vendor != "tdk" {
		t.Fatalf("unexpected vendors %+v", s.Vendors)
	}
	m := s.Vendors[0]
	if m.Requests != 2 || m.AvgDuration != 200*time.Millisecond || m.ByOperation["discovery"] != 1 {
		t.Errorf("unexpected murata summary %+v", m)
	}
	if tdk := s.Vendors[1]; tdk.Degraded != 2 || tdk.AvgDuration != 0 {
		t.Errorf("degraded calls must not count toward the average: %+v", tdk)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.TotalRequests != 0 || s.Vendors == nil {
		t.Errorf("unexpected empty summary %+v", s)
	}
}

func TestWriters(t *testing.T) {
	s := GenerateSummary(sample())

	var text bytes.Buffer
	if err := WriteText(&text, s); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Total Calls:   4 requests", "murata: 2 calls", "warmup: 1", "403: 1", "Akamai: 1"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text report lacks %q:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	if err := WriteJSON(&js, s); err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(js.Bytes(), &back); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if back["total_requests"].(float64) != 4 {
		t.Errorf("unexpected JSON %s", js.String())
	}
}
