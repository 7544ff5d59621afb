// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, ObjectStore, Cache, Ingestion, Redis, Postgres, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	Cache       CacheConfig       `yaml:"cache"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RunTimeout bounds a single HTTP-triggered ingestion run.
	RunTimeout time.Duration `yaml:"runTimeout"`
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers; "*" allows any origin.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// ObjectStoreConfig selects and configures the remote blob store.
type ObjectStoreConfig struct {
	Provider        string               `yaml:"provider" validate:"oneof=minio s3"`
	Endpoint        string               `yaml:"endpoint"`
	Region          string               `yaml:"region"`
	AccessKeyID     string               `yaml:"accessKeyId"`
	SecretAccessKey string               `yaml:"secretAccessKey"`
	UseSSL          bool                 `yaml:"useSSL"`
	UsePathStyle    bool                 `yaml:"usePathStyle"`
	Prefix          string               `yaml:"prefix"`
	RequestsPerSec  float64              `yaml:"requestsPerSec" validate:"gte=0"`
	Burst           int                  `yaml:"burst" validate:"gte=0"`
	Retry           RetryConfig          `yaml:"retry"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RetryConfig controls retries of transient object store failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts" validate:"gte=0"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// CircuitBreakerConfig controls when the object store breaker trips.
type CircuitBreakerConfig struct {
	FailureThreshold uint32        `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	HalfOpenRequests uint32        `yaml:"halfOpenRequests"`
}

// CacheConfig selects the local cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file badger redis postgres memory"`
	Dir     string `yaml:"dir" validate:"required_if=Backend file,required_if=Backend badger"`
}

// IngestionConfig controls the ingestion pipeline.
type IngestionConfig struct {
	Bucket           string        `yaml:"bucket"`
	ConcurrencyLimit int           `yaml:"concurrencyLimit" validate:"gte=1,lte=256"`
	MaxAge           time.Duration `yaml:"maxAge" validate:"gte=0"`
	RefreshInterval  time.Duration `yaml:"refreshInterval" validate:"gte=0"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers" validate:"required_if=Enabled true"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IngestionTrigger string `yaml:"ingestionTrigger"`
	IngestionReports string `yaml:"ingestionReports"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RunTimeout:      90 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Provider:       "minio",
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			RequestsPerSec: 20,
			Burst:          10,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     "data/cache",
		},
		Ingestion: IngestionConfig{
			ConcurrencyLimit: 4,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "recoingest",
			User:            "recoingest",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "reco-ingestion",
			Topics: KafkaTopics{
				IngestionTrigger: "ingestion-trigger",
				IngestionReports: "ingestion-reports",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "reco:",
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

// applyEnvOverrides reads RI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RI_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RI_OBJECTSTORE_PROVIDER"); v != "" {
		cfg.ObjectStore.Provider = v
	}
	if v := os.Getenv("RI_OBJECTSTORE_ENDPOINT"); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("RI_OBJECTSTORE_REGION"); v != "" {
		cfg.ObjectStore.Region = v
	}
	if v := os.Getenv("RI_OBJECTSTORE_ACCESS_KEY_ID"); v != "" {
		cfg.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("RI_OBJECTSTORE_SECRET_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.SecretAccessKey = v
	}
	if v := os.Getenv("RI_OBJECTSTORE_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ObjectStore.UseSSL = b
		}
	}
	if v := os.Getenv("RI_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("RI_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("RI_INGESTION_BUCKET"); v != "" {
		cfg.Ingestion.Bucket = v
	}
	if v := os.Getenv("RI_INGESTION_CONCURRENCY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv("RI_INGESTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingestion.MaxAge = d
		}
	}
	if v := os.Getenv("RI_INGESTION_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingestion.RefreshInterval = d
		}
	}
	if v := os.Getenv("RI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RI_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("RI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
