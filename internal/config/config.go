// Package config loads server configuration from defaults, an optional YAML
// file and FUNCSIM_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/funcsim-mcp/internal/ghidra"
	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/ranker"
	"github.com/dshills/funcsim-mcp/internal/resolver"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/internal/signature"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. FUNCSIM_GHIDRA_URL
const EnvPrefix = "FUNCSIM"

// Config is the top-level funcsim configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Ghidra   GhidraConfig   `mapstructure:"ghidra"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Ranker   RankerConfig   `mapstructure:"ranker"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoreConfig selects the store opened at startup and networked pool settings.
type StoreConfig struct {
	Default  string         `mapstructure:"default"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection pool settings for networked stores.
type PostgresConfig struct {
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CatalogConfig locates the signature catalog served to queries.
type CatalogConfig struct {
	Path      string `mapstructure:"path"`
	CacheSize int    `mapstructure:"cache_size"`
}

// GhidraConfig configures the plugin client used for artifact resolution.
type GhidraConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Retries        int           `mapstructure:"retries"`
}

// ResolverConfig sets default time budgets.
type ResolverConfig struct {
	DecompileBudget   time.Duration `mapstructure:"decompile_budget"`
	DisassemblyBudget time.Duration `mapstructure:"disassembly_budget"`
}

// RankerConfig controls batch query concurrency.
type RankerConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// IngestConfig controls catalog ingestion concurrency.
type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix FUNCSIM_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.default", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 1)
	v.SetDefault("store.postgres.max_conn_lifetime", 5*time.Minute)
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.cache_size", signature.DefaultCacheSize)
	v.SetDefault("ghidra.url", ghidra.DefaultServerURL)
	v.SetDefault("ghidra.request_timeout", ghidra.DefaultRequestTimeout)
	v.SetDefault("ghidra.rate_limit", 0.0)
	v.SetDefault("ghidra.retries", ghidra.DefaultMaxRetries)
	v.SetDefault("resolver.decompile_budget", resolver.DefaultDecompileBudget)
	v.SetDefault("resolver.disassembly_budget", resolver.DefaultDisassemblyBudget)
	v.SetDefault("ranker.workers", 0)
	v.SetDefault("ranker.query_timeout", ranker.DefaultQueryTimeout)
	v.SetDefault("ingest.workers", 0)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Store.Default != "" {
		if _, err := types.ParseDescriptor(c.Store.Default); err != nil {
			errs = append(errs, fmt.Errorf("config: store.default: %w", err))
		}
	}
	if c.Store.Postgres.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("config: store.postgres.max_conns must be at least 1, got %d", c.Store.Postgres.MaxConns))
	}
	if c.Store.Postgres.MinConns < 0 || c.Store.Postgres.MinConns > c.Store.Postgres.MaxConns {
		errs = append(errs, fmt.Errorf("config: store.postgres.min_conns must be between 0 and max_conns, got %d", c.Store.Postgres.MinConns))
	}

	if c.Catalog.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("config: catalog.cache_size must be positive, got %d", c.Catalog.CacheSize))
	}

	if c.Ghidra.URL == "" {
		errs = append(errs, errors.New("config: ghidra.url must not be empty"))
	}
	if c.Ghidra.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: ghidra.request_timeout must be positive, got %s", c.Ghidra.RequestTimeout))
	}
	if c.Ghidra.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("config: ghidra.rate_limit cannot be negative, got %g", c.Ghidra.RateLimit))
	}
	if c.Ghidra.Retries < 1 {
		errs = append(errs, fmt.Errorf("config: ghidra.retries must be at least 1, got %d", c.Ghidra.Retries))
	}

	if c.Resolver.DecompileBudget <= 0 {
		errs = append(errs, fmt.Errorf("config: resolver.decompile_budget must be positive, got %s", c.Resolver.DecompileBudget))
	}
	if c.Resolver.DisassemblyBudget <= 0 {
		errs = append(errs, fmt.Errorf("config: resolver.disassembly_budget must be positive, got %s", c.Resolver.DisassemblyBudget))
	}

	if c.Ranker.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: ranker.workers cannot be negative, got %d", c.Ranker.Workers))
	}
	if c.Ranker.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: ranker.query_timeout must be positive, got %s", c.Ranker.QueryTimeout))
	}
	if c.Ingest.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: ingest.workers cannot be negative, got %d", c.Ingest.Workers))
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("config: metrics.listen must be a host:port address, got %q: %w", c.Metrics.Listen, err))
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != logging.FormatText && f != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("config: log.format must be one of [%s, %s], got %q", logging.FormatText, logging.FormatJSON, c.Log.Format))
	}

	return errs
}

// Pool converts the settings for the store opener.
func (c PostgresConfig) Pool() session.PoolConfig {
	return session.PoolConfig{
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
	}
}

// ClientConfig converts the settings for the plugin client.
func (c GhidraConfig) ClientConfig() ghidra.Config {
	retry := ghidra.DefaultRetryConfig()
	retry.MaxRetries = c.Retries
	return ghidra.Config{
		ServerURL:      c.URL,
		RequestTimeout: c.RequestTimeout,
		RateLimit:      c.RateLimit,
		Retry:          retry,
	}
}

// RankerSettings converts the settings for the ranker.
func (c RankerConfig) RankerSettings() ranker.Config {
	return ranker.Config{Workers: c.Workers, QueryTimeout: c.QueryTimeout}
}

// Budgets converts the settings for the resolver.
func (c ResolverConfig) Budgets() resolver.Config {
	return resolver.Config{
		DecompileBudget:   c.DecompileBudget,
		DisassemblyBudget: c.DisassemblyBudget,
	}
}
