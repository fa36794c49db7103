package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/partscout/internal/encoder"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partscout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.MaxResults != 100 || cfg.AI.Enabled {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.AI.Breaker.Cooldown != time.Minute || cfg.AI.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected AI defaults %+v", cfg.AI)
	}
	var names []string
	for _, vc := range cfg.EnabledVendors() {
		names = append(names, vc.Name)
	}
	if diff := cmp.Diff([]string{"kemet", "murata", "tdk"}, names); diff != "" {
		t.Errorf("built-in vendors mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesVendorFields(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
vendors:
  murata:
    page_size: 50
    categories:
      GJM: luCeramicCapacitorsSMD
    filters:
      luInductorSMD:
        - caption: Inductance
          field: inductor-inductance
          type: range
  kemet:
    enabled: false
  acme:
    base_url: https://acme.example
    mpn_path: /search
    kind: kemet
    timeout: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr not read: %q", cfg.Server.Addr)
	}

	m := cfg.Vendors["murata"]
	if m.PageSize != 50 || m.BaseURL != "https://www.murata.com" {
		t.Errorf("expected a field-by-field merge, got page=%d base=%q", m.PageSize, m.BaseURL)
	}
	if m.Categories["GRM"] != "luCeramicCapacitorsSMD" {
		t.Errorf("built-in prefixes must survive a merge: %v", m.Categories)
	}
	if _, ok := m.Categories["gjm"]; !ok {
		t.Errorf("added prefix missing: %v", m.Categories)
	}
	if _, ok := m.Filters["luInductorSMD"]; !ok {
		t.Errorf("filter keys must keep the category code case: %v", m.Filters)
	}

	if cfg.Vendors["kemet"].Enabled {
		t.Errorf("kemet should be disabled")
	}
	acme := cfg.Vendors["acme"]
	if acme.Name != "acme" || !acme.Enabled || acme.Timeout != 5*time.Second {
		t.Errorf("unexpected added vendor %+v", acme)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PARTSCOUT_SERVER_ADDR", ":7070")
	t.Setenv("PARTSCOUT_AI_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeFile(t, "server:\n  addr: \":9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env must win over the file, got %q", cfg.Server.Addr)
	}
	if !cfg.AI.Enabled || cfg.AI.APIKey != "sk-test" {
		t.Errorf("unexpected AI settings %+v", cfg.AI)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("an explicit missing file must fail")
	}
	_, err := Load(writeFile(t, "audit:\n  backend: mongo\n"))
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	_, err = Load(writeFile(t, "vendors:\n  tdk:\n    grammar: pipe\n"))
	if !errors.Is(err, encoder.ErrUnknownGrammar) {
		t.Errorf("expected ErrUnknownGrammar, got %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(writeFile(t, "ai:\n  enabled: true\n")); err == nil {
		t.Errorf("ai without a key must fail")
	}
}

func TestOpenAudit(t *testing.T) {
	ctx := context.Background()
	if b, err := (AuditConfig{}).OpenAudit(ctx); b != nil || err != nil {
		t.Errorf("disabled audit must be nil, nil; got %v %v", b, err)
	}

	dir := t.TempDir()
	for _, a := range []AuditConfig{
		{Backend: "sqlite", DSN: filepath.Join(dir, "audit.db")},
		{Backend: "json", DSN: filepath.Join(dir, "audit.ndjson")},
		{Backend: "csv", DSN: filepath.Join(dir, "audit.csv")},
	} {
		b, err := a.OpenAudit(ctx)
		if err != nil {
			t.Errorf("%s: %v", a.Backend, err)
			continue
		}
		if err := b.Close(); err != nil {
			t.Errorf("%s close: %v", a.Backend, err)
		}
	}
	if _, err := (AuditConfig{Backend: "redis"}).OpenAudit(ctx); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}
