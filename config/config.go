package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP     HTTPConfig           `yaml:"http"`
	Log      LogConfig            `yaml:"log"`
	Database DatabaseConfig       `yaml:"database"`
	Models   ModelsConfig         `yaml:"models"`
	Dataset  DatasetConfig        `yaml:"dataset"`
	Cache    CacheConfig          `yaml:"cache"`
	Watch    *bool                `yaml:"watch"`
	Apps     map[string]AppConfig `yaml:"apps"`
}

type HTTPConfig struct {
	Port           int `yaml:"port"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ModelsConfig struct {
	Dir string `yaml:"dir"`
}

type DatasetConfig struct {
	Dir string `yaml:"dir"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

// AppConfig overrides the built-in settings of one app. Zero values keep the
// app's own defaults.
type AppConfig struct {
	Dataset   string  `yaml:"dataset"`
	ModelType string  `yaml:"model_type"`
	Trees     int     `yaml:"trees"`
	MaxDepth  int     `yaml:"max_depth"`
	Seed      *int64  `yaml:"seed"`
	TestRatio float64 `yaml:"test_ratio"`
	Strict    bool    `yaml:"strict"`
	Currency  string  `yaml:"currency"`
	Locale    string  `yaml:"locale"`
}

// Default returns the configuration used when config.yaml is absent.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Database.Path == "" {
		c.Database.Path = "pricelab.db"
	}
	if c.Models.Dir == "" {
		c.Models.Dir = "models"
	}
	if c.Dataset.Dir == "" {
		c.Dataset.Dir = "dataset"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 256
	}
	if c.Watch == nil {
		watch := true
		c.Watch = &watch
	}
	if c.Apps == nil {
		c.Apps = make(map[string]AppConfig)
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return errors.New("http.timeout_seconds must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	for name, app := range c.Apps {
		if err := app.Validate(); err != nil {
			return fmt.Errorf("apps.%s: %w", name, err)
		}
	}
	return nil
}

func (a AppConfig) Validate() error {
	switch a.ModelType {
	case "", "linear", "random_forest":
	default:
		return fmt.Errorf("model_type %q must be linear or random_forest", a.ModelType)
	}
	if a.TestRatio < 0 || a.TestRatio >= 1 {
		return fmt.Errorf("test_ratio %v must be in [0, 1)", a.TestRatio)
	}
	if a.Trees < 0 || a.MaxDepth < 0 {
		return errors.New("trees and max_depth must not be negative")
	}
	if a.Currency != "" {
		if _, err := currency.ParseISO(a.Currency); err != nil {
			return fmt.Errorf("currency %q: %w", a.Currency, err)
		}
	}
	if a.Locale != "" {
		if _, err := language.Parse(a.Locale); err != nil {
			return fmt.Errorf("locale %q: %w", a.Locale, err)
		}
	}
	return nil
}

// App returns the overrides for name, zero if none are configured.
func (c *Config) App(name string) AppConfig {
	return c.Apps[name]
}

func (c *Config) WatchEnabled() bool {
	return c.Watch != nil && *c.Watch
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
