// Package config provides configuration management for workflowcore.
// It supports loading configuration from environment variables, a file
// (YAML/JSON), and defaults, with a clear precedence order: env > file >
// defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/validation"
)

// Config is the complete workflowcore configuration.
type Config struct {
	Storage       StorageConfig             `json:"storage" yaml:"storage"`
	Logging       LoggingConfig             `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig       `json:"observability" yaml:"observability"`
	GitHub        GitHubConfig              `json:"github" yaml:"github"`
	Orchestration model.OrchestrationConfig `json:"orchestration" yaml:"orchestration"`
}

// StorageConfig selects and configures the workflow persistence backend.
type StorageConfig struct {
	Backend     string `json:"backend" yaml:"backend"` // "memory", "sqlite", or "redis"
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr   string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB     int    `json:"redis_db" yaml:"redis_db"`
	RedisTTLMin int    `json:"redis_ttl_minutes" yaml:"redis_ttl_minutes"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ObservabilityConfig configures metrics, tracing, and error reporting.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Port      int    `json:"port" yaml:"port"`
	Path      string `json:"path" yaml:"path"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig configures Sentry error reporting.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// GitHubConfig configures the issue-comment notifier.
type GitHubConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	Owner   string `json:"owner" yaml:"owner"`
	Repo    string `json:"repo" yaml:"repo"`
}

// Default values.
const (
	DefaultStorageBackend    = "memory"
	DefaultSQLitePath        = "./data/workflowcore.db"
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisDB           = 0
	DefaultRedisTTLMinutes   = 1440
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultMetricsEnabled    = false
	DefaultMetricsNamespace  = "workflowcore"
	DefaultMetricsPort       = 9091
	DefaultMetricsPath       = "/metrics"
	DefaultTracingEnabled    = false
	DefaultOTLPEndpoint      = "localhost:4317"
	DefaultTracingSampleRate = 0.1
	DefaultSentryEnabled     = false
	DefaultSentryEnv         = "development"
	DefaultSentrySampleRate  = 1.0
	DefaultGitHubEnabled     = false
)

// Valid values for validation.
var (
	ValidLogLevels       = []string{"debug", "info", "warn", "error"}
	ValidLogFormats      = []string{"json", "text"}
	ValidStorageBackends = []string{"memory", "sqlite", "redis"}
)

// Load loads configuration from environment variables and an optional
// config file. Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if configFile := os.Getenv("WORKFLOWCORE_CONFIG_FILE"); configFile != "" {
		validatedPath, err := validation.ValidateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("config file path validation failed: %w", err)
		}

		fileCfg, err := loadFile(validatedPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with all default values.
func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:     DefaultStorageBackend,
			SQLitePath:  DefaultSQLitePath,
			RedisAddr:   DefaultRedisAddr,
			RedisDB:     DefaultRedisDB,
			RedisTTLMin: DefaultRedisTTLMinutes,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:   DefaultMetricsEnabled,
				Namespace: DefaultMetricsNamespace,
				Port:      DefaultMetricsPort,
				Path:      DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				OTLPEndpoint: DefaultOTLPEndpoint,
				SampleRate:   DefaultTracingSampleRate,
			},
			Sentry: SentryConfig{
				Enabled:     DefaultSentryEnabled,
				Environment: DefaultSentryEnv,
				SampleRate:  DefaultSentrySampleRate,
			},
		},
		GitHub:        GitHubConfig{Enabled: DefaultGitHubEnabled},
		Orchestration: model.DefaultOrchestrationConfig(),
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv overrides cfg's fields from WORKFLOWCORE_* environment
// variables where set.
func loadEnv(cfg *Config) *Config {
	if backend := os.Getenv("WORKFLOWCORE_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if sqlitePath := os.Getenv("WORKFLOWCORE_SQLITE_PATH"); sqlitePath != "" {
		cfg.Storage.SQLitePath = sqlitePath
	}
	if redisAddr := os.Getenv("WORKFLOWCORE_REDIS_ADDR"); redisAddr != "" {
		cfg.Storage.RedisAddr = redisAddr
	}
	if redisDB := os.Getenv("WORKFLOWCORE_REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Storage.RedisDB = db
		}
	}

	if logLevel := os.Getenv("WORKFLOWCORE_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("WORKFLOWCORE_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if metricsEnabled := os.Getenv("WORKFLOWCORE_METRICS_ENABLED"); metricsEnabled != "" {
		if enabled, err := strconv.ParseBool(metricsEnabled); err == nil {
			cfg.Observability.Metrics.Enabled = enabled
		}
	}
	if metricsPort := os.Getenv("WORKFLOWCORE_METRICS_PORT"); metricsPort != "" {
		if port, err := strconv.Atoi(metricsPort); err == nil {
			cfg.Observability.Metrics.Port = port
		}
	}

	if tracingEnabled := os.Getenv("WORKFLOWCORE_TRACING_ENABLED"); tracingEnabled != "" {
		if enabled, err := strconv.ParseBool(tracingEnabled); err == nil {
			cfg.Observability.Tracing.Enabled = enabled
		}
	}
	if otlpEndpoint := os.Getenv("WORKFLOWCORE_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Observability.Tracing.OTLPEndpoint = otlpEndpoint
	}
	if sampleRate := os.Getenv("WORKFLOWCORE_TRACING_SAMPLE_RATE"); sampleRate != "" {
		if rate, err := strconv.ParseFloat(sampleRate, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = rate
		}
	}

	if sentryEnabled := os.Getenv("WORKFLOWCORE_SENTRY_ENABLED"); sentryEnabled != "" {
		if enabled, err := strconv.ParseBool(sentryEnabled); err == nil {
			cfg.Observability.Sentry.Enabled = enabled
		}
	}
	if sentryDSN := os.Getenv("WORKFLOWCORE_SENTRY_DSN"); sentryDSN != "" {
		cfg.Observability.Sentry.DSN = sentryDSN
	}
	if sentryEnv := os.Getenv("WORKFLOWCORE_SENTRY_ENVIRONMENT"); sentryEnv != "" {
		cfg.Observability.Sentry.Environment = sentryEnv
	}

	if githubEnabled := os.Getenv("WORKFLOWCORE_GITHUB_ENABLED"); githubEnabled != "" {
		if enabled, err := strconv.ParseBool(githubEnabled); err == nil {
			cfg.GitHub.Enabled = enabled
		}
	}
	if githubToken := os.Getenv("WORKFLOWCORE_GITHUB_TOKEN"); githubToken != "" {
		cfg.GitHub.Token = githubToken
	}
	if githubOwner := os.Getenv("WORKFLOWCORE_GITHUB_OWNER"); githubOwner != "" {
		cfg.GitHub.Owner = githubOwner
	}
	if githubRepo := os.Getenv("WORKFLOWCORE_GITHUB_REPO"); githubRepo != "" {
		cfg.GitHub.Repo = githubRepo
	}

	if maxRetries := os.Getenv("WORKFLOWCORE_MAX_RETRIES_PER_STEP"); maxRetries != "" {
		if n, err := strconv.Atoi(maxRetries); err == nil {
			cfg.Orchestration.MaxRetriesPerStep = n
		}
	}
	if maxLoop := os.Getenv("WORKFLOWCORE_MAX_LOOP_ITERATIONS"); maxLoop != "" {
		if n, err := strconv.Atoi(maxLoop); err == nil {
			cfg.Orchestration.MaxLoopIterations = n
		}
	}

	return cfg
}

// merge layers override onto base, preferring override's non-zero fields.
// Zero-value fields in a partially-populated file config fall back
// transparently to whatever base already carries.
func merge(base, override *Config) *Config {
	result := *base
	if err := mergo.Merge(&result, override, mergo.WithOverride); err != nil {
		return base
	}
	return &result
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if !contains(ValidStorageBackends, c.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidStorageBackends)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("sqlite path cannot be empty when storage backend is sqlite")
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("redis addr cannot be empty when storage backend is redis")
	}

	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
		}
	}

	if c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("otlp endpoint cannot be empty when tracing enabled")
		}
		if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample rate must be between 0 and 1: %f", c.Observability.Tracing.SampleRate)
		}
	}

	if c.Observability.Sentry.Enabled {
		if c.Observability.Sentry.DSN == "" {
			return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
		}
		if c.Observability.Sentry.SampleRate < 0 || c.Observability.Sentry.SampleRate > 1 {
			return fmt.Errorf("sentry sample rate must be between 0 and 1: %f", c.Observability.Sentry.SampleRate)
		}
	}

	if c.GitHub.Enabled {
		if c.GitHub.Token == "" {
			return fmt.Errorf("github token cannot be empty when github notifier enabled")
		}
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return fmt.Errorf("github owner and repo cannot be empty when github notifier enabled")
		}
	}

	if c.Orchestration.MaxRetriesPerStep < 0 {
		return fmt.Errorf("max retries per step cannot be negative: %d", c.Orchestration.MaxRetriesPerStep)
	}
	if c.Orchestration.MaxLoopIterations < 1 {
		return fmt.Errorf("max loop iterations must be positive: %d", c.Orchestration.MaxLoopIterations)
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
