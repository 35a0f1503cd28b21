package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLX    = "sqlx.db"

	envPrefix = "CIRCULATION_"
)

var (
	// ErrInvalidConfig is returned when a loaded configuration is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the process configuration.
type Config struct {
	HTTP          HTTP          `yaml:"http"`
	Database      Database      `yaml:"database"`
	Observability Observability `yaml:"observability"`
	Circulation   Circulation   `yaml:"circulation"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Database configures the PostgreSQL connection. An empty DSN runs on the in-memory engine.
type Database struct {
	Adapter         string        `yaml:"adapter"`
	DSN             string        `yaml:"dsn"`
	ReplicaDSN      string        `yaml:"replica_dsn"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

// Observability configures logging and the OTLP exporters. Empty endpoints disable the exporter.
type Observability struct {
	ServiceName     string `yaml:"service_name"`
	ServiceVersion  string `yaml:"service_version"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	TraceEndpoint   string `yaml:"trace_endpoint"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
	Insecure        bool   `yaml:"insecure"`
}

// Circulation tunes the engine.
type Circulation struct {
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RoleCacheTTL   time.Duration `yaml:"role_cache_ttl"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: Database{
			Adapter:         AdapterPGXPool,
			MaxConns:        50,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 5 * time.Minute,
			ConnectTimeout:  5 * time.Second,
			LockTimeout:     5 * time.Second,
		},
		Observability: Observability{
			ServiceName:    "circulationd",
			ServiceVersion: "dev",
			LogLevel:       "info",
			LogFormat:      "json",
			Insecure:       true,
		},
		Circulation: Circulation{
			MaxRetries:     3,
			RetryBaseDelay: 50 * time.Millisecond,
			RoleCacheTTL:   30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional), a .env file
// in the working directory (optional) and CIRCULATION_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"HTTP_ADDR":        &c.HTTP.Addr,
		"DB_ADAPTER":       &c.Database.Adapter,
		"DB_DSN":           &c.Database.DSN,
		"DB_REPLICA_DSN":   &c.Database.ReplicaDSN,
		"SERVICE_NAME":     &c.Observability.ServiceName,
		"SERVICE_VERSION":  &c.Observability.ServiceVersion,
		"LOG_LEVEL":        &c.Observability.LogLevel,
		"LOG_FORMAT":       &c.Observability.LogFormat,
		"TRACE_ENDPOINT":   &c.Observability.TraceEndpoint,
		"METRICS_ENDPOINT": &c.Observability.MetricsEndpoint,
	}

	for key, target := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*target = v
		}
	}

	durations := map[string]*time.Duration{
		"HTTP_REQUEST_TIMEOUT": &c.HTTP.RequestTimeout,
		"DB_LOCK_TIMEOUT":      &c.Database.LockTimeout,
		"RETRY_BASE_DELAY":     &c.Circulation.RetryBaseDelay,
		"ROLE_CACHE_TTL":       &c.Circulation.RoleCacheTTL,
	}

	for key, target := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Join(ErrInvalidConfig, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			}

			*target = d
		}
	}

	ints := map[string]*int{
		"DB_MAX_CONNS": &c.Database.MaxConns,
		"MAX_RETRIES":  &c.Circulation.MaxRetries,
	}

	for key, target := range ints {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Join(ErrInvalidConfig, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			}

			*target = n
		}
	}

	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}

	if v, ok := lookup(envPrefix + "OTLP_INSECURE"); ok {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("%sOTLP_INSECURE: %w", envPrefix, err))
		}

		c.Observability.Insecure = insecure
	}

	return nil
}

func splitList(v string) []string {
	var out []string

	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	switch c.Database.Adapter {
	case AdapterPGXPool, AdapterSQLDB, AdapterSQLX:
	default:
		return errors.Join(ErrInvalidConfig, fmt.Errorf("unsupported database adapter %q", c.Database.Adapter))
	}

	if c.Database.ReplicaDSN != "" && c.Database.DSN == "" {
		return errors.Join(ErrInvalidConfig, errors.New("replica_dsn needs a primary dsn"))
	}

	if c.Database.LockTimeout <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("lock_timeout must be positive"))
	}

	if c.Circulation.MaxRetries < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("max_retries must not be negative"))
	}

	if c.HTTP.Addr == "" {
		return errors.Join(ErrInvalidConfig, errors.New("http addr must be set"))
	}

	return nil
}

// UsesPostgres reports whether a database DSN is configured.
func (c Config) UsesPostgres() bool {
	return c.Database.DSN != ""
}
