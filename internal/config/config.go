package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Scraper    ScraperConfig    `yaml:"scraper" mapstructure:"scraper"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SerperConfig holds Serper web search API settings.
type SerperConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Country     string `yaml:"country" mapstructure:"country"`
	Language    string `yaml:"language" mapstructure:"language"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScraperConfig configures page fetching.
type ScraperConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxPages     int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// AnthropicConfig holds Anthropic API settings for candidate extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ValidationConfig bounds the contact verification stages.
type ValidationConfig struct {
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	Workers          int `yaml:"workers" mapstructure:"workers"`
	CacheTTLHours    int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	SkipSMTP         bool `yaml:"skip_smtp" mapstructure:"skip_smtp"`
}

// StageTimeout returns the per-stage timeout as a duration.
func (v ValidationConfig) StageTimeout() time.Duration {
	return time.Duration(v.StageTimeoutSecs) * time.Second
}

// CacheTTL returns the verification cache TTL as a duration.
func (v ValidationConfig) CacheTTL() time.Duration {
	return time.Duration(v.CacheTTLHours) * time.Hour
}

// PipelineConfig configures per-organization enrichment behavior.
type PipelineConfig struct {
	MaxDocuments     int `yaml:"max_documents" mapstructure:"max_documents"`
	ExtractChunkSize int `yaml:"extract_chunk_size" mapstructure:"extract_chunk_size"`
}

// BatchConfig configures batch processing across organizations.
type BatchConfig struct {
	MaxConcurrentSchools int     `yaml:"max_concurrent_schools" mapstructure:"max_concurrent_schools"`
	DelaySecs            float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
}

// Delay returns the inter-organization delay as a duration.
func (b BatchConfig) Delay() time.Duration {
	return time.Duration(b.DelaySecs * float64(time.Second))
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country", "id")
	v.SetDefault("serper.language", "id")
	v.SetDefault("serper.max_results", 10)
	v.SetDefault("serper.timeout_secs", 15)
	v.SetDefault("scraper.timeout_secs", 20)
	v.SetDefault("scraper.max_body_bytes", 2<<20)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (compatible; leadgen-cli/1.0)")
	v.SetDefault("scraper.max_pages", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("validation.stage_timeout_secs", 5)
	v.SetDefault("validation.workers", 4)
	v.SetDefault("validation.cache_ttl_hours", 168)
	v.SetDefault("pipeline.max_documents", 12)
	v.SetDefault("pipeline.extract_chunk_size", 6000)
	v.SetDefault("batch.max_concurrent_schools", 1)
	v.SetDefault("batch.delay_secs", 2.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "enrich" (run/batch commands), "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "enrich":
		check(c.Serper.Key != "", "serper.key is required")
		check(c.Anthropic.Key != "", "anthropic.key is required")
	case "serve":
		check(c.Serper.Key != "", "serper.key is required")
		check(c.Anthropic.Key != "", "anthropic.key is required")
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	check(c.Batch.MaxConcurrentSchools >= 1 && c.Batch.MaxConcurrentSchools <= 20,
		"batch.max_concurrent_schools must be between 1 and 20")
	check(c.Batch.DelaySecs >= 0, "batch.delay_secs must be >= 0")
	check(c.Validation.StageTimeoutSecs > 0, "validation.stage_timeout_secs must be > 0")

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
