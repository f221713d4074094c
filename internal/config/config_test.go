package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadgen.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://google.serper.dev", cfg.Serper.BaseURL)
	assert.Equal(t, "id", cfg.Serper.Country)
	assert.Equal(t, "id", cfg.Serper.Language)
	assert.Equal(t, 10, cfg.Serper.MaxResults)
	assert.Equal(t, 20, cfg.Scraper.TimeoutSecs)
	assert.Equal(t, 5, cfg.Scraper.MaxPages)
	assert.Equal(t, 5, cfg.Validation.StageTimeoutSecs)
	assert.Equal(t, 4, cfg.Validation.Workers)
	assert.Equal(t, 168, cfg.Validation.CacheTTLHours)
	assert.Equal(t, 12, cfg.Pipeline.MaxDocuments)
	assert.Equal(t, 1, cfg.Batch.MaxConcurrentSchools)
	assert.InDelta(t, 2.0, cfg.Batch.DelaySecs, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_schools: 3
  delay_secs: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentSchools)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.Delay())
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Serper.MaxResults)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADGEN_STORE_DRIVER", "postgres")
	t.Setenv("LEADGEN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LEADGEN_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidationDurations(t *testing.T) {
	v := ValidationConfig{StageTimeoutSecs: 7, CacheTTLHours: 24}
	assert.Equal(t, 7*time.Second, v.StageTimeout())
	assert.Equal(t, 24*time.Hour, v.CacheTTL())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validCfg returns a Config that passes validation for enrich mode.
func validCfg() *Config {
	cfg := &Config{}
	cfg.Serper.Key = "serper-key"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Batch.MaxConcurrentSchools = 1
	cfg.Validation.StageTimeoutSecs = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	assert.NoError(t, validCfg().Validate("enrich"))
}

func TestValidateEnrich_MissingKeys(t *testing.T) {
	cfg := validCfg()
	cfg.Serper.Key = ""
	cfg.Anthropic.Key = ""

	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "serper.key is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validCfg()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validCfg().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validCfg()

	cfg.Batch.MaxConcurrentSchools = 0
	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_schools must be between 1 and 20")

	cfg.Batch.MaxConcurrentSchools = 21
	err = cfg.Validate("enrich")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentSchools = 20
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateNegativeDelay(t *testing.T) {
	cfg := validCfg()
	cfg.Batch.DelaySecs = -1

	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "delay_secs must be >= 0")
}
