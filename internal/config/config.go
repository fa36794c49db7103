// Package config loads partscout settings from defaults, an optional YAML
// file, a .env file and PARTSCOUT_* environment variables, in increasing
// priority.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/partscout/internal/encoder"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/internal/storage/csvbackend"
	"github.com/FranksOps/partscout/internal/storage/jsonbackend"
	"github.com/FranksOps/partscout/internal/storage/postgres"
	"github.com/FranksOps/partscout/internal/storage/sqlite"
	"github.com/FranksOps/partscout/internal/vendor"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARTSCOUT"

// ErrUnknownBackend is returned for an audit backend kind nothing implements.
var ErrUnknownBackend = errors.New("config: unknown audit backend")

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig  `mapstructure:"server"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
	Log        LogConfig     `mapstructure:"log"`
	Audit      AuditConfig   `mapstructure:"audit"`
	AI         AIConfig      `mapstructure:"ai"`
	MaxResults int           `mapstructure:"max_results"`
	UserAgents []string      `mapstructure:"user_agents"`
	// Vendors start from the built-in settings; the file overrides them
	// field by field and may add new ones.
	Vendors map[string]vendor.Config `mapstructure:"-"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	// Addr is empty to serve /metrics from the API server only.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables rotation through lumberjack; empty logs to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AuditConfig selects where exchange audits go. An empty Backend disables
// auditing.
type AuditConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

type AIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

type BreakerConfig struct {
	FailureRateThreshold float64       `mapstructure:"failure_rate_threshold"`
	WindowSize           int           `mapstructure:"window_size"`
	MinimumCalls         int           `mapstructure:"minimum_calls"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
	HalfOpenProbes       int           `mapstructure:"half_open_probes"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("audit.backend", "")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", 20*time.Second)
	v.SetDefault("ai.call_timeout", 20*time.Second)
	v.SetDefault("ai.breaker.failure_rate_threshold", 0.5)
	v.SetDefault("ai.breaker.window_size", 10)
	v.SetDefault("ai.breaker.minimum_calls", 5)
	v.SetDefault("ai.breaker.cooldown", 60*time.Second)
	v.SetDefault("ai.breaker.half_open_probes", 1)
	v.SetDefault("ai.retry.max_attempts", 3)
	v.SetDefault("ai.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("ai.retry.max_interval", 4*time.Second)
	v.SetDefault("max_results", 100)
	v.SetDefault("user_agents", []string{})
}

// Load reads the configuration. path names a YAML file; when empty,
// partscout.yaml is looked up in the working directory and is optional.
// A .env file in the working directory is loaded first if present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("config: bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("partscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	vendors, err := loadVendors(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Vendors = vendors
	return cfg, cfg.Validate()
}

// loadVendors decodes each file entry over the built-in settings of the
// same name.
func loadVendors(v *viper.Viper) (map[string]vendor.Config, error) {
	out := vendor.Defaults()
	for name := range v.GetStringMap("vendors") {
		vc, ok := out[name]
		if !ok {
			vc = vendor.Config{Name: name, Enabled: true}
		}
		if err := v.UnmarshalKey("vendors."+name, &vc); err != nil {
			return nil, fmt.Errorf("config: vendor %s: %w", name, err)
		}
		if vc.Name == "" {
			vc.Name = name
		}
		canonicalFilterKeys(&vc)
		out[name] = vc
	}
	return out, nil
}

// canonicalFilterKeys restores the case of filter table keys, which the
// file loader lowercases, from the category codes named elsewhere.
func canonicalFilterKeys(vc *vendor.Config) {
	codes := map[string]string{strings.ToLower(vc.DefaultCategory): vc.DefaultCategory}
	for _, m := range []map[string]string{vc.Categories, vc.Paths} {
		for _, code := range m {
			codes[strings.ToLower(code)] = code
		}
	}
	if len(vc.Filters) == 0 {
		return
	}
	filters := make(map[string][]encoder.FieldDef, len(vc.Filters))
	for k, defs := range vc.Filters {
		if code, ok := codes[strings.ToLower(k)]; ok && code != "" {
			k = code
		}
		filters[k] = defs
	}
	vc.Filters = filters
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	for name, vc := range c.Vendors {
		if !vc.Enabled {
			continue
		}
		if vc.BaseURL == "" {
			errs = append(errs, fmt.Errorf("config: vendor %s: base_url is required", name))
		}
		if vc.MPNPath == "" {
			errs = append(errs, fmt.Errorf("config: vendor %s: mpn_path is required", name))
		}
		if vc.Grammar != "" {
			if _, err := encoder.ParseGrammar(vc.Grammar); err != nil {
				errs = append(errs, fmt.Errorf("config: vendor %s: %w", name, err))
			}
		}
	}
	switch strings.ToLower(c.Audit.Backend) {
	case "", "sqlite", "postgres", "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Audit.Backend))
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		errs = append(errs, errors.New("config: ai.enabled requires ai.api_key"))
	}
	return errors.Join(errs...)
}

// EnabledVendors returns the enabled vendor settings sorted by name.
func (c Config) EnabledVendors() []vendor.Config {
	out := make([]vendor.Config, 0, len(c.Vendors))
	for _, vc := range c.Vendors {
		if vc.Enabled {
			out = append(out, vc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OpenAudit opens the configured audit backend. It returns nil, nil when
// auditing is disabled.
func (a AuditConfig) OpenAudit(ctx context.Context) (storage.Backend, error) {
	switch strings.ToLower(a.Backend) {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(a.dsnOr("partscout.db"))
	case "postgres":
		dsn := a.dsnOr(os.Getenv("DATABASE_URL"))
		if dsn == "" {
			return nil, errors.New("config: postgres audit backend needs a dsn")
		}
		return postgres.New(ctx, dsn)
	case "json":
		return jsonbackend.New(a.dsnOr("exchanges.ndjson"))
	case "csv":
		return csvbackend.New(a.dsnOr("exchanges.csv"))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, a.Backend)
}

func (a AuditConfig) dsnOr(def string) string {
	if a.DSN != "" {
		return a.DSN
	}
	return def
}
