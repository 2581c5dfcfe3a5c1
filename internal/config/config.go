// Package config loads sift's settings from defaults, an optional YAML file,
// a .env file and SIFT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main application configuration struct.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Render  RenderConfig  `mapstructure:"render"`
	Extract ExtractConfig `mapstructure:"extract"`
	Embed   EmbedConfig   `mapstructure:"embed"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type SearchConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	MaxResults        int           `mapstructure:"max_results"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
}

type RenderConfig struct {
	Backend      string        `mapstructure:"backend"` // chrome or http
	Headless     bool          `mapstructure:"headless"`
	NoSandbox    bool          `mapstructure:"no_sandbox"`
	ExecPath     string        `mapstructure:"exec_path"`
	UserAgents   []string      `mapstructure:"user_agents"`
	Settle       time.Duration `mapstructure:"settle"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
}

type ExtractConfig struct {
	Concurrency   int    `mapstructure:"concurrency"`
	MinLength     int    `mapstructure:"min_length"`
	Assignment    string `mapstructure:"assignment"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

type EmbedConfig struct {
	Host      string        `mapstructure:"host"`
	Model     string        `mapstructure:"model"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Require makes startup fail when the backend cannot be reached.
	Require bool `mapstructure:"require"`
}

type DedupConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	OnEmbedFailure string  `mapstructure:"on_embed_failure"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // none, memory, sqlite, postgres, json, redis
	DSN     string        `mapstructure:"dsn"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File is a path to a rotated log file; empty logs to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// EnvPrefix namespaces environment overrides, e.g. SIFT_EMBED_HOST.
const EnvPrefix = "SIFT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.max_results", 12)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.requests_per_second", 1.0)
	v.SetDefault("search.jitter", 0.2)

	v.SetDefault("render.backend", "chrome")
	v.SetDefault("render.headless", true)
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("render.exec_path", "")
	v.SetDefault("render.user_agents", []string{})
	v.SetDefault("render.settle", 3*time.Second)
	v.SetDefault("render.ready_timeout", 10*time.Second)
	v.SetDefault("render.page_timeout", 30*time.Second)

	v.SetDefault("extract.concurrency", 8)
	v.SetDefault("extract.min_length", 200)
	v.SetDefault("extract.assignment", "round_robin")
	v.SetDefault("extract.respect_robots", true)

	v.SetDefault("embed.host", "http://localhost:11434")
	v.SetDefault("embed.model", "all-minilm")
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.timeout", 60*time.Second)
	v.SetDefault("embed.require", true)

	v.SetDefault("dedup.threshold", 0.7)
	v.SetDefault("dedup.on_embed_failure", "empty")

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

// Load reads configuration. path may be empty, in which case sift.yaml is
// looked up in the working directory and $HOME/.config/sift; a missing file
// is not an error. A .env file in the working directory is loaded first
// without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/sift")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("search.max_results must be at least 1, got %d", c.Search.MaxResults))
	}
	if c.Search.Jitter < 0 || c.Search.Jitter > 1 {
		errs = append(errs, fmt.Errorf("search.jitter must be in [0, 1], got %v", c.Search.Jitter))
	}
	if !oneOf(c.Render.Backend, "chrome", "http") {
		errs = append(errs, fmt.Errorf("render.backend must be chrome or http, got %q", c.Render.Backend))
	}
	if c.Render.Settle < 0 {
		errs = append(errs, fmt.Errorf("render.settle must not be negative"))
	}
	if c.Extract.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("extract.concurrency must be at least 1, got %d", c.Extract.Concurrency))
	}
	if c.Extract.MinLength < 0 {
		errs = append(errs, fmt.Errorf("extract.min_length must not be negative"))
	}
	if !oneOf(c.Extract.Assignment, "round_robin", "available") {
		errs = append(errs, fmt.Errorf("extract.assignment must be round_robin or available, got %q", c.Extract.Assignment))
	}
	if c.Embed.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("embed.batch_size must be at least 1, got %d", c.Embed.BatchSize))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.threshold must be in (0, 1], got %v", c.Dedup.Threshold))
	}
	if !oneOf(c.Dedup.OnEmbedFailure, "empty", "passthrough") {
		errs = append(errs, fmt.Errorf("dedup.on_embed_failure must be empty or passthrough, got %q", c.Dedup.OnEmbedFailure))
	}
	if !oneOf(c.Cache.Backend, "none", "memory", "sqlite", "postgres", "json", "redis") {
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if oneOf(c.Cache.Backend, "sqlite", "postgres", "json", "redis") && c.Cache.DSN == "" {
		errs = append(errs, fmt.Errorf("cache.dsn is required for the %s cache", c.Cache.Backend))
	}
	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
