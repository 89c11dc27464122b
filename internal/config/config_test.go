package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	"WORKFLOWCORE_CONFIG_FILE",
	"WORKFLOWCORE_STORAGE_BACKEND",
	"WORKFLOWCORE_SQLITE_PATH",
	"WORKFLOWCORE_REDIS_ADDR",
	"WORKFLOWCORE_REDIS_DB",
	"WORKFLOWCORE_LOG_LEVEL",
	"WORKFLOWCORE_LOG_FORMAT",
	"WORKFLOWCORE_METRICS_ENABLED",
	"WORKFLOWCORE_METRICS_PORT",
	"WORKFLOWCORE_TRACING_ENABLED",
	"WORKFLOWCORE_OTLP_ENDPOINT",
	"WORKFLOWCORE_TRACING_SAMPLE_RATE",
	"WORKFLOWCORE_SENTRY_ENABLED",
	"WORKFLOWCORE_SENTRY_DSN",
	"WORKFLOWCORE_SENTRY_ENVIRONMENT",
	"WORKFLOWCORE_GITHUB_ENABLED",
	"WORKFLOWCORE_GITHUB_TOKEN",
	"WORKFLOWCORE_GITHUB_OWNER",
	"WORKFLOWCORE_GITHUB_REPO",
	"WORKFLOWCORE_MAX_RETRIES_PER_STEP",
	"WORKFLOWCORE_MAX_LOOP_ITERATIONS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allEnvVars {
		os.Unsetenv(v)
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, DefaultStorageBackend, cfg.Storage.Backend)
	assert.Equal(t, DefaultSQLitePath, cfg.Storage.SQLitePath)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, 2, cfg.Orchestration.MaxRetriesPerStep)
	assert.Equal(t, 10, cfg.Orchestration.MaxLoopIterations)
}

func TestLoadEnv_OverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { clearEnv(t) })

	os.Setenv("WORKFLOWCORE_STORAGE_BACKEND", "redis")
	os.Setenv("WORKFLOWCORE_REDIS_ADDR", "redis.internal:6380")
	os.Setenv("WORKFLOWCORE_LOG_LEVEL", "debug")
	os.Setenv("WORKFLOWCORE_MAX_RETRIES_PER_STEP", "5")

	cfg := loadEnv(defaults())

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Storage.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Orchestration.MaxRetriesPerStep)
}

func TestLoadEnv_InvalidValuesIgnored(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { clearEnv(t) })

	os.Setenv("WORKFLOWCORE_METRICS_PORT", "not-a-number")
	os.Setenv("WORKFLOWCORE_METRICS_ENABLED", "maybe")

	cfg := loadEnv(defaults())

	assert.Equal(t, DefaultMetricsPort, cfg.Observability.Metrics.Port)
	assert.Equal(t, DefaultMetricsEnabled, cfg.Observability.Metrics.Enabled)
}

func TestLoadFile_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
storage:
  backend: sqlite
  sqlite_path: /data/wf.db
logging:
  level: warn
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/data/wf.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.txt")
	require.NoError(t, os.WriteFile(path, []byte("irrelevant"), 0644))

	_, err := loadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := loadFile("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}

func TestMerge_OverridesOnlyNonZeroFields(t *testing.T) {
	base := defaults()
	override := &Config{Logging: LoggingConfig{Level: "debug"}}

	result := merge(base, override)

	assert.Equal(t, "debug", result.Logging.Level)
	assert.Equal(t, DefaultLogFormat, result.Logging.Format)
	assert.Equal(t, DefaultStorageBackend, result.Storage.Backend)
}

func TestValidate_RejectsUnknownStorageBackend(t *testing.T) {
	cfg := defaults()
	cfg.Storage.Backend = "dynamodb"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage backend")
}

func TestValidate_RequiresSQLitePathForSQLiteBackend(t *testing.T) {
	cfg := defaults()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite path")
}

func TestValidate_RequiresGitHubFieldsWhenEnabled(t *testing.T) {
	cfg := defaults()
	cfg.GitHub.Enabled = true
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "github token")
}

func TestValidate_RejectsInvalidTracingSampleRate(t *testing.T) {
	cfg := defaults()
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.SampleRate = 2.0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tracing sample rate")
}

func TestValidate_RejectsNonPositiveMaxLoopIterations(t *testing.T) {
	cfg := defaults()
	cfg.Orchestration.MaxLoopIterations = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max loop iterations")
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, defaults().Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { clearEnv(t) })

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { clearEnv(t) })

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := "logging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	os.Setenv("WORKFLOWCORE_CONFIG_FILE", path)
	os.Setenv("WORKFLOWCORE_LOG_LEVEL", "error")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_ValidationError(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { clearEnv(t) })

	os.Setenv("WORKFLOWCORE_LOG_LEVEL", "verbose")

	_, err := Load(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}
