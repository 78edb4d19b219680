package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/pkg/ident"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings, used when STORE_BACKEND=postgres
	Database DatabaseConfig

	Store     StoreConfig
	Namespace NamespaceConfig
	Sweep     SweepConfig
	Replace   ReplaceConfig
	Coercion  CoercionConfig
	Otel      OtelConfig

	// PipelineFile overrides the embedded pipeline definition
	PipelineFile string `env:"PIPELINE_FILE" envDefault:""`

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"28800s"` // 8 hours for SSE
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"28800s"`  // 8 hours for SSE
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	// URL takes precedence over the individual settings when set
	URL          string        `env:"DATABASE_URL" envDefault:""`
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"graphmerge"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"graphmerge"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`

	// SlowQueryThreshold logs slower queries as warnings; zero disables it
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"3s"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// StoreConfig selects and tunes the triple store backend
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" envDefault:"memory"`

	// BadgerDir is the data directory of the badger backend
	BadgerDir      string `env:"BADGER_DIR" envDefault:"./data/badger"`
	BadgerInMemory bool   `env:"BADGER_IN_MEMORY" envDefault:"false"`

	// Tenants are known up front and walked by the sweep. Tenants first seen
	// through requests are added at runtime.
	Tenants       []string `env:"TENANTS" envSeparator:"," envDefault:"default"`
	DefaultTenant string   `env:"DEFAULT_TENANT" envDefault:"default"`
	// TenantCacheSize bounds the number of open tenant stores
	TenantCacheSize int `env:"TENANT_CACHE_SIZE" envDefault:"128"`

	// AuditEnabled writes transaction audit quads on every commit
	AuditEnabled bool `env:"STORE_AUDIT_ENABLED" envDefault:"true"`
}

// Validate checks the backend name and tenant list
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendPostgres, BackendBadger:
	default:
		return fmt.Errorf("unknown store backend %q", s.Backend)
	}
	if s.TenantCacheSize <= 0 {
		return fmt.Errorf("TENANT_CACHE_SIZE must be positive, got %d", s.TenantCacheSize)
	}
	for _, t := range s.Tenants {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("empty tenant name in TENANTS")
		}
	}
	return nil
}

// KnownTenants returns the configured tenants plus the default tenant,
// sorted and deduplicated.
func (s *StoreConfig) KnownTenants() []string {
	out := make([]string, 0, len(s.Tenants)+1)
	for _, t := range s.Tenants {
		out = append(out, strings.TrimSpace(t))
	}
	if s.DefaultTenant != "" {
		out = append(out, s.DefaultTenant)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NamespaceConfig holds the identifier namespaces
type NamespaceConfig struct {
	Entity      string `env:"ENTITY_NAMESPACE" envDefault:"urn:pwid:meg:e:"`
	Transaction string `env:"TRANSACTION_NAMESPACE" envDefault:"urn:pwid:meg:t:"`
}

// Namespace returns the identifier namespace
func (n NamespaceConfig) Namespace() ident.Namespace {
	return ident.Namespace{EntityPrefix: n.Entity, TransactionPrefix: n.Transaction}
}

// SweepConfig holds the duplicate sweep schedule and limits
type SweepConfig struct {
	Enabled bool `env:"SWEEP_ENABLED" envDefault:"true"`
	// IntervalMs is the time between passes (default: 600000 = 10 minutes)
	IntervalMs int `env:"SWEEP_INTERVAL_MS" envDefault:"600000"`
	// InitialDelayMs delays the first pass after start (default: 60000)
	InitialDelayMs int `env:"SWEEP_INITIAL_DELAY_MS" envDefault:"60000"`
	// Schedule is a cron expression with seconds that takes precedence over
	// the interval when set, e.g. "0 0 2 * * *"
	Schedule string `env:"SWEEP_SCHEDULE" envDefault:""`
	// CandidateLimit is the page size of the duplicate candidate query
	CandidateLimit int `env:"SWEEP_CANDIDATE_LIMIT" envDefault:"10"`
	// MaxRounds bounds how often a full page is re-queried per predicate
	MaxRounds       int     `env:"SWEEP_MAX_ROUNDS" envDefault:"10"`
	MergesPerSecond float64 `env:"SWEEP_MERGES_PER_SECOND" envDefault:"20"`
	QueryTimeoutMs  int     `env:"SWEEP_QUERY_TIMEOUT_MS" envDefault:"60000"`
}

// Interval returns the pass interval as a Duration
func (s *SweepConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// InitialDelay returns the start delay as a Duration
func (s *SweepConfig) InitialDelay() time.Duration {
	return time.Duration(s.InitialDelayMs) * time.Millisecond
}

// QueryTimeout returns the candidate query timeout as a Duration
func (s *SweepConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMs) * time.Millisecond
}

// ReplaceConfig schedules the job that moves blank node and external
// subjects already in the store to local identifiers
type ReplaceConfig struct {
	Enabled        bool   `env:"REPLACE_IDENTIFIERS_ENABLED" envDefault:"true"`
	IntervalMs     int    `env:"REPLACE_IDENTIFIERS_INTERVAL_MS" envDefault:"3600000"`
	InitialDelayMs int    `env:"REPLACE_IDENTIFIERS_INITIAL_DELAY_MS" envDefault:"120000"`
	Schedule       string `env:"REPLACE_IDENTIFIERS_SCHEDULE" envDefault:""`
	// BatchSize caps the subjects replaced per tenant and pass
	BatchSize int `env:"REPLACE_IDENTIFIERS_BATCH_SIZE" envDefault:"5000"`
}

// Interval returns the pass interval as a Duration
func (r *ReplaceConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// InitialDelay returns the start delay as a Duration
func (r *ReplaceConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// CoercionConfig schedules the job that assigns local entity classes to
// typed resources already in the store
type CoercionConfig struct {
	Enabled        bool   `env:"TYPE_COERCION_ENABLED" envDefault:"false"`
	IntervalMs     int    `env:"TYPE_COERCION_INTERVAL_MS" envDefault:"3600000"`
	InitialDelayMs int    `env:"TYPE_COERCION_INITIAL_DELAY_MS" envDefault:"180000"`
	Schedule       string `env:"TYPE_COERCION_SCHEDULE" envDefault:""`
	BatchSize      int    `env:"TYPE_COERCION_BATCH_SIZE" envDefault:"500"`
}

// Interval returns the pass interval as a Duration
func (c *CoercionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// InitialDelay returns the start delay as a Duration
func (c *CoercionConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// OtelConfig selects the span exporter. An empty endpoint installs a no-op
// tracer provider.
type OtelConfig struct {
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"graphmerge"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
	Insecure         bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}

// Enabled reports whether spans are exported.
func (c OtelConfig) Enabled() bool { return c.ExporterEndpoint != "" }

// Load parses configuration from the environment without logging
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("store_backend", cfg.Store.Backend),
		slog.Any("tenants", cfg.Store.KnownTenants()),
		slog.Bool("sweep_enabled", cfg.Sweep.Enabled),
		slog.Bool("replace_identifiers_enabled", cfg.Replace.Enabled),
		slog.Bool("type_coercion_enabled", cfg.Coercion.Enabled),
	)

	return cfg, nil
}
