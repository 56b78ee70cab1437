// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	CacheDir string         `yaml:"cache_dir"`
	Volume   int            `yaml:"volume" default:"70" validate:"gte=0,lte=100"`
	Log      LogConfig      `yaml:"log"`
	LLM      LLMConfig      `yaml:"llm"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Playback PlaybackConfig `yaml:"playback"`
}

// LogConfig represents logging configuration. The TUI owns the terminal, so
// logs default to a file next to the cache directory.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level" default:"info"`
}

// LLMConfig represents the language-model dispatch configuration.
type LLMConfig struct {
	APIKey     string `yaml:"api_key" validate:"required"`
	Model      string `yaml:"model" default:"claude-sonnet-4-5"`
	MaxTokens  int    `yaml:"max_tokens" default:"1024" validate:"gte=1"`
	TimeoutSec int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=300"`
}

// FetchConfig represents fetch pipeline configuration.
type FetchConfig struct {
	Binary      string `yaml:"binary" default:"yt-dlp"`
	Concurrency int    `yaml:"concurrency" default:"2" validate:"gte=1,lte=8"`
	Backlog     int    `yaml:"backlog" default:"32" validate:"gte=1"`
	TimeoutSec  int    `yaml:"timeout_sec" default:"120" validate:"gte=1"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	TickMs               int `yaml:"tick_ms" default:"200" validate:"gte=20,lte=2000"`
	PrefetchThresholdSec int `yaml:"prefetch_threshold_sec" default:"30" validate:"gte=0"`
	PrefetchCount        int `yaml:"prefetch_count" default:"2" validate:"gte=1,lte=5"`
}

// Load loads configuration from a YAML file. A missing file yields a default
// configuration. Environment variables take precedence for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to locate home directory")
		}
		cfg.CacheDir = filepath.Join(home, ".vibedeck", "cache")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(filepath.Dir(cfg.CacheDir), "vibedeck.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("VIBEDECK_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// LLMTimeout returns the dispatch timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// FetchTimeout returns the per-attempt fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSec) * time.Second
}

// PlaybackTick returns the engine tick interval as a duration.
func (c *Config) PlaybackTick() time.Duration {
	return time.Duration(c.Playback.TickMs) * time.Millisecond
}

// PrefetchThreshold returns the remaining-time prefetch threshold.
func (c *Config) PrefetchThreshold() time.Duration {
	return time.Duration(c.Playback.PrefetchThresholdSec) * time.Second
}
