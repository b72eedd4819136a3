// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Ingest, Store, etc.).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. When URL is set it
// takes precedence over the individual host/port/user fields.
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// MigrationURL returns the connection string in URL form, as required by
// golang-migrate.
func (p PostgresConfig) MigrationURL() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AssetIngested string `yaml:"assetIngested"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// IngestConfig controls the signed asset-ingestion webhook. Secret and
// APIKeyID are normally supplied through the environment only.
type IngestConfig struct {
	Secret          string          `yaml:"secret"`
	APIKeyID        string          `yaml:"apiKeyId"`
	TimestampWindow time.Duration   `yaml:"timestampWindow"`
	MaxBodyBytes    int64           `yaml:"maxBodyBytes"`
	StoreTimeout    time.Duration   `yaml:"storeTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// Configured reports whether both the shared secret and the API key
// identifier are present.
func (c IngestConfig) Configured() bool {
	return c.Secret != "" && c.APIKeyID != ""
}

// RateLimitConfig selects the admission limiter. Backend is "memory" or
// "redis".
type RateLimitConfig struct {
	Backend string        `yaml:"backend"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
	Key     string        `yaml:"key"`
}

// StoreConfig selects the catalog store driver ("postgres" or "memory") and
// migration behaviour.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	AutoMigrate   bool   `yaml:"autoMigrate"`
	MigrationsDir string `yaml:"migrationsDir"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects structurally invalid settings. Missing ingest secrets are
// not an error here: the endpoint reports them per request.
func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Ingest.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.Ingest.RateLimit.Backend)
	}
	if c.Ingest.RateLimit.Limit <= 0 {
		return fmt.Errorf("ingest.rateLimit.limit must be positive, got %d", c.Ingest.RateLimit.Limit)
	}
	if c.Ingest.RateLimit.Window <= 0 {
		return fmt.Errorf("ingest.rateLimit.window must be positive")
	}
	if c.Ingest.MaxBodyBytes <= 0 {
		return fmt.Errorf("ingest.maxBodyBytes must be positive, got %d", c.Ingest.MaxBodyBytes)
	}
	if c.Ingest.TimestampWindow <= 0 {
		return fmt.Errorf("ingest.timestampWindow must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "assetcatalog",
			User:            "assetcatalog",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				AssetIngested: "asset.ingested",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Ingest: IngestConfig{
			TimestampWindow: 300 * time.Second,
			MaxBodyBytes:    500_000,
			StoreTimeout:    5 * time.Second,
			RateLimit: RateLimitConfig{
				Backend: "memory",
				Limit:   20,
				Window:  time.Hour,
				Key:     "ingest",
			},
		},
		Store: StoreConfig{
			Driver:        "postgres",
			AutoMigrate:   false,
			MigrationsDir: "migrations",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
		},
	}
}

// applyEnvOverrides reads AI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AI_DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("AI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("AI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("AI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("AI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("AI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("AI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("AI_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("AI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AI_INGEST_SECRET"); v != "" {
		cfg.Ingest.Secret = v
	}
	if v := os.Getenv("AI_INGEST_API_KEY_ID"); v != "" {
		cfg.Ingest.APIKeyID = v
	}
	if v := os.Getenv("AI_INGEST_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RateLimit.Limit = limit
		}
	}
	if v := os.Getenv("AI_INGEST_RATE_LIMIT_BACKEND"); v != "" {
		cfg.Ingest.RateLimit.Backend = v
	}
	if v := os.Getenv("AI_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
