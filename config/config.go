package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ini "github.com/robfig/config"

	"github.com/jonwraymond/viewcache/cache"
	"github.com/jonwraymond/viewcache/observe"
	"github.com/jonwraymond/viewcache/secret"
)

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendMemcache = "memcache"
	BackendSQLite   = "sqlite"
)

// Catalog drivers.
const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
	CatalogSQLite   = "sqlite"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig
	Cache   CacheConfig
	Catalog CatalogConfig
	Observe observe.Config
}

// CatalogConfig selects where listings are read from on a cache miss.
type CatalogConfig struct {
	Driver  string
	DSN     string
	Migrate bool
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// CacheConfig selects and tunes the cache store.
type CacheConfig struct {
	Backend         string
	Namespace       string
	MemcacheServers []string
	SQLitePath      string

	FiltersExpiry time.Duration
	MaxTTL        time.Duration

	BackendTimeout  time.Duration
	BreakerFailures int
	BreakerReset    time.Duration

	// SweepSchedule is a cron spec for purging stale entries. Empty
	// disables sweeping.
	SweepSchedule string

	Singleflight bool

	ProducerTimeout        time.Duration
	MaxConcurrentProducers int
}

// Policy returns the loader TTL policy for these settings.
func (c CacheConfig) Policy() cache.Policy {
	return cache.Policy{DefaultTTL: c.FiltersExpiry, MaxTTL: c.MaxTTL}
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:                BackendMemory,
			Namespace:              cache.DefaultNamespace,
			SQLitePath:             "viewcache.db",
			FiltersExpiry:          cache.FiltersExpiry,
			MaxTTL:                 time.Hour,
			BackendTimeout:         250 * time.Millisecond,
			BreakerFailures:        5,
			BreakerReset:           30 * time.Second,
			SweepSchedule:          "@every 1m",
			ProducerTimeout:        5 * time.Second,
			MaxConcurrentProducers: 32,
		},
		Catalog: CatalogConfig{
			Driver: CatalogMemory,
		},
		Observe: observe.Config{
			ServiceName: "viewcache",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 0.1},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info", Format: "json"},
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	return LoadContext(context.Background(), path, secret.NewDefaultResolver())
}

// LoadContext is Load with an explicit context and resolver. A nil resolver
// expands environment variables only.
func LoadContext(ctx context.Context, path string, resolver *secret.Resolver) (Config, error) {
	file, err := ini.ReadDefault(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	r := &reader{ctx: ctx, file: file, resolver: resolver}

	r.string("server", "listen", &cfg.Server.Listen)
	r.duration("server", "shutdown_timeout", &cfg.Server.ShutdownTimeout)

	r.string("cache", "backend", &cfg.Cache.Backend)
	r.string("cache", "namespace", &cfg.Cache.Namespace)
	r.list("cache", "memcache_servers", &cfg.Cache.MemcacheServers)
	r.string("cache", "sqlite_path", &cfg.Cache.SQLitePath)
	r.duration("cache", "filters_expiry", &cfg.Cache.FiltersExpiry)
	r.duration("cache", "max_ttl", &cfg.Cache.MaxTTL)
	r.duration("cache", "backend_timeout", &cfg.Cache.BackendTimeout)
	r.int("cache", "breaker_failures", &cfg.Cache.BreakerFailures)
	r.duration("cache", "breaker_reset", &cfg.Cache.BreakerReset)
	r.string("cache", "sweep_schedule", &cfg.Cache.SweepSchedule)
	r.bool("cache", "singleflight", &cfg.Cache.Singleflight)
	r.duration("cache", "producer_timeout", &cfg.Cache.ProducerTimeout)
	r.int("cache", "max_concurrent_producers", &cfg.Cache.MaxConcurrentProducers)

	r.string("catalog", "driver", &cfg.Catalog.Driver)
	r.string("catalog", "dsn", &cfg.Catalog.DSN)
	r.bool("catalog", "migrate", &cfg.Catalog.Migrate)

	r.string("observe", "service_name", &cfg.Observe.ServiceName)
	r.string("observe", "version", &cfg.Observe.Version)
	r.string("observe", "log_level", &cfg.Observe.Logging.Level)
	r.string("observe", "log_format", &cfg.Observe.Logging.Format)
	r.string("observe", "tracing_exporter", &cfg.Observe.Tracing.Exporter)
	r.string("observe", "tracing_endpoint", &cfg.Observe.Tracing.Endpoint)
	r.float("observe", "sample_pct", &cfg.Observe.Tracing.SamplePct)
	r.string("observe", "metrics_exporter", &cfg.Observe.Metrics.Exporter)
	r.string("observe", "metrics_endpoint", &cfg.Observe.Metrics.Endpoint)

	if r.err != nil {
		return Config{}, r.err
	}

	cfg.Observe.Tracing.Enabled = exporterEnabled(cfg.Observe.Tracing.Exporter)
	cfg.Observe.Metrics.Enabled = exporterEnabled(cfg.Observe.Metrics.Exporter)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func exporterEnabled(name string) bool {
	return name != "" && name != "none"
}

// Validate checks that the settings describe a runnable service.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen is empty", ErrInvalidConfig)
	}

	cc := c.Cache
	switch cc.Backend {
	case BackendMemory:
	case BackendMemcache:
		if len(cc.MemcacheServers) == 0 {
			return fmt.Errorf("%w: cache.memcache_servers is empty", ErrInvalidConfig)
		}
	case BackendSQLite:
		if cc.SQLitePath == "" {
			return fmt.Errorf("%w: cache.sqlite_path is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, cc.Backend)
	}

	if cc.FiltersExpiry <= 0 {
		return fmt.Errorf("%w: cache.filters_expiry must be positive", ErrInvalidConfig)
	}
	if cc.MaxTTL > 0 && cc.MaxTTL < cc.FiltersExpiry {
		return fmt.Errorf("%w: cache.max_ttl %s is below filters_expiry %s", ErrInvalidConfig, cc.MaxTTL, cc.FiltersExpiry)
	}
	if cc.BackendTimeout <= 0 {
		return fmt.Errorf("%w: cache.backend_timeout must be positive", ErrInvalidConfig)
	}
	if cc.BreakerFailures < 0 || cc.MaxConcurrentProducers < 0 {
		return fmt.Errorf("%w: negative cache limits", ErrInvalidConfig)
	}

	switch c.Catalog.Driver {
	case CatalogMemory:
	case CatalogPostgres, CatalogSQLite:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("%w: catalog.dsn is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown catalog driver %q", ErrInvalidConfig, c.Catalog.Driver)
	}

	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// reader copies options that are present in file into their targets. The
// first error sticks and later calls are no-ops.
type reader struct {
	ctx      context.Context
	file     *ini.Config
	resolver *secret.Resolver
	err      error
}

func (r *reader) raw(section, option string) (string, bool) {
	if r.err != nil || !r.file.HasOption(section, option) {
		return "", false
	}
	s, err := r.file.String(section, option)
	if err != nil {
		r.err = fmt.Errorf("config: %s.%s: %w", section, option, err)
		return "", false
	}
	s, err = r.resolver.ResolveValue(r.ctx, strings.TrimSpace(s))
	if err != nil {
		r.err = fmt.Errorf("config: %s.%s: %w", section, option, err)
		return "", false
	}
	return s, true
}

func (r *reader) fail(section, option, value string, err error) {
	r.err = fmt.Errorf("%w: %s.%s = %q: %v", ErrInvalidConfig, section, option, value, err)
}

func (r *reader) string(section, option string, dst *string) {
	if s, ok := r.raw(section, option); ok {
		*dst = s
	}
}

func (r *reader) list(section, option string, dst *[]string) {
	s, ok := r.raw(section, option)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (r *reader) duration(section, option string, dst *time.Duration) {
	s, ok := r.raw(section, option)
	if !ok {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		r.fail(section, option, s, err)
		return
	}
	*dst = d
}

func (r *reader) int(section, option string, dst *int) {
	s, ok := r.raw(section, option)
	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.fail(section, option, s, err)
		return
	}
	*dst = n
}

func (r *reader) float(section, option string, dst *float64) {
	s, ok := r.raw(section, option)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(section, option, s, err)
		return
	}
	*dst = f
}

func (r *reader) bool(section, option string, dst *bool) {
	s, ok := r.raw(section, option)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.fail(section, option, s, err)
		return
	}
	*dst = b
}
