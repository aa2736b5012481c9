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
	Catalog  CatalogConfig  `yaml:"catalog"`
	Library  LibraryConfig  `yaml:"library"`
	Playback PlaybackConfig `yaml:"playback"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// CatalogConfig represents remote catalog configuration.
type CatalogConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	Cookie     string `yaml:"cookie"`
	Quality    string `yaml:"quality" default:"standard" validate:"oneof=standard higher exhigh lossless hires jyeffect sky jymaster"`
	TimeoutSec int    `yaml:"timeout_sec" default:"15" validate:"gte=1,lte=120"`
}

// Timeout returns the request timeout as a duration.
func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// LibraryConfig represents local library configuration.
type LibraryConfig struct {
	// MusicDir is the managed directory downloads are written to.
	// Defaults to ~/Music/WYMusic.
	MusicDir string `yaml:"music_dir"`
	// AudioDirs are extra directories scanned for songs at startup.
	AudioDirs []string `yaml:"audio_dirs"`
}

// PlaybackConfig represents playback configuration.
type PlaybackConfig struct {
	Volume         float64 `yaml:"volume" default:"0.33" validate:"gte=0,lte=1"`
	ProgressTickMs int     `yaml:"progress_tick_ms" default:"800" validate:"gte=100,lte=5000"`
	PoolSize       int     `yaml:"pool_size" default:"10" validate:"gte=1,lte=64"`
}

// ProgressTick returns the position update interval.
func (c PlaybackConfig) ProgressTick() time.Duration {
	return time.Duration(c.ProgressTickMs) * time.Millisecond
}

// SnapshotConfig represents persistent snapshot store configuration.
type SnapshotConfig struct {
	// Dir holds the snapshot blobs. Defaults to <music_dir>/.state.
	Dir     string `yaml:"dir"`
	Version int    `yaml:"version" default:"1" validate:"gte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.fillDerived(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("WYMUSIC_API_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("WYMUSIC_COOKIE"); v != "" {
		c.Catalog.Cookie = v
	}
}

// fillDerived fills directory defaults that depend on the environment.
func (c *Config) fillDerived() error {
	if c.Library.MusicDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to resolve home directory")
		}
		c.Library.MusicDir = filepath.Join(home, "Music", "WYMusic")
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = filepath.Join(c.Library.MusicDir, ".state")
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
