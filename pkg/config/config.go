// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Engine, Postgres, Kafka, Redis, Audit, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EngineConfig holds the retrieval engine's scoring parameters.
type EngineConfig struct {
	// EmbeddingDim is the fixed dimension of the deterministic embedder.
	EmbeddingDim int `yaml:"embeddingDim"`
	// Seed namespaces every stable hash (embedding buckets, tie-breaks).
	Seed string `yaml:"seed"`
	// BM25 term-frequency saturation parameter, must be > 0.
	K1 float64 `yaml:"k1"`
	// BM25 length-normalization parameter in [0,1].
	B float64 `yaml:"b"`
	// Alpha weights the lexical signal in hybrid fusion, in [0,1].
	Alpha float64 `yaml:"alpha"`
	// DefaultK is the fused top-k size used when a query does not set one.
	DefaultK int `yaml:"defaultK"`
	// EmbedWorkers bounds the batch-embedding worker pool.
	EmbedWorkers int `yaml:"embedWorkers"`
}

// PostgresConfig holds PostgreSQL connection parameters for the corpus
// provider.
type PostgresConfig struct {
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
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for audit publication.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ParityReports string `yaml:"parityReports"`
	Posteriors    string `yaml:"posteriors"`
}

// RedisConfig holds Redis connection and ranking-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AuditConfig lists the queries the audit gate runs against the corpus.
type AuditConfig struct {
	Queries []AuditQuery `yaml:"queries"`
}

// AuditQuery pairs a retrieval query with the evidence IDs downstream
// tooling cited for it and the top-k window they must appear in.
type AuditQuery struct {
	Query       string   `yaml:"query"`
	Theme       string   `yaml:"theme"`
	EvidenceIDs []string `yaml:"evidenceIds"`
	K           int      `yaml:"k"`
}

// LoggingConfig controls slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus sidecar listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, and validates engine parameters.
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
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}
	return cfg, nil
}

// Validate checks the engine parameters against their documented bounds.
func (e EngineConfig) Validate() error {
	if e.EmbeddingDim <= 0 {
		return fmt.Errorf("embeddingDim must be > 0, got %d", e.EmbeddingDim)
	}
	if e.K1 <= 0 {
		return fmt.Errorf("k1 must be > 0, got %g", e.K1)
	}
	if e.B < 0 || e.B > 1 {
		return fmt.Errorf("b must be in [0,1], got %g", e.B)
	}
	if e.Alpha < 0 || e.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1], got %g", e.Alpha)
	}
	if e.DefaultK <= 0 {
		return fmt.Errorf("defaultK must be > 0, got %d", e.DefaultK)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			EmbeddingDim: 256,
			Seed:         "esg-retrieval-v1",
			K1:           1.2,
			B:            0.75,
			Alpha:        0.6,
			DefaultK:     10,
			EmbedWorkers: 4,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "esgreports",
			User:            "esgreports",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				ParityReports: "audit.parity-reports",
				Posteriors:    "audit.posteriors",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RE_ENGINE_EMBEDDING_DIM"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			cfg.Engine.EmbeddingDim = dim
		}
	}
	if v := os.Getenv("RE_ENGINE_SEED"); v != "" {
		cfg.Engine.Seed = v
	}
	if v := os.Getenv("RE_ENGINE_ALPHA"); v != "" {
		if alpha, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.Alpha = alpha
		}
	}
	if v := os.Getenv("RE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RE_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("RE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
