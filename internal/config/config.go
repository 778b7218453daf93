// Package config loads spielpendium settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/bgg"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/tracing"
)

const (
	defaultArchive = "collection.splz"
	defaultCache   = "spielpendium-cache.db"
)

// Config holds application configuration.
type Config struct {
	ArchivePath string        `yaml:"archive_path"`
	Cache       CacheConfig   `yaml:"cache"`
	Catalog     CatalogConfig `yaml:"catalog"`
	Import      ImportConfig  `yaml:"import"`
	Logging     LoggingConfig `yaml:"logging"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// CacheConfig controls the catalog response cache.
type CacheConfig struct {
	Path   string        `yaml:"path"`
	MaxAge time.Duration `yaml:"max_age"` // 0 disables expiry
}

// CatalogConfig controls requests to the catalog API.
type CatalogConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rate_limit"` // requests per second
	Burst         int           `yaml:"burst"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	ChunkSize     int           `yaml:"chunk_size"`
}

// ImportConfig controls the import pipeline.
type ImportConfig struct {
	Workers     int    `yaml:"workers"`      // 0 = NumCPU
	ImageSize   int    `yaml:"image_size"`   // longest side in pixels
	ImagePolicy string `yaml:"image_policy"` // abort, placeholder, skip
}

// LoggingConfig mirrors logging.Config for YAML.
type LoggingConfig struct {
	Format     string `yaml:"format"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	lc := logging.DefaultConfig()
	tc := tracing.DefaultConfig()
	retry := bgg.DefaultRetryPolicy()
	return &Config{
		ArchivePath: defaultArchive,
		Cache: CacheConfig{
			Path:   defaultCache,
			MaxAge: 24 * time.Hour,
		},
		Catalog: CatalogConfig{
			BaseURL:       bgg.DefaultBaseURL,
			Timeout:       30 * time.Second,
			RateLimit:     2,
			Burst:         1,
			RetryAttempts: retry.MaxAttempts,
			RetryDelay:    retry.Delay,
			ChunkSize:     bgg.DefaultChunkSize,
		},
		Import: ImportConfig{
			ImageSize:   bgg.DefaultImageSize,
			ImagePolicy: string(bgg.PolicyPlaceholder),
		},
		Logging: LoggingConfig{
			Format:     lc.Format,
			Level:      lc.Level,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
		},
		Tracing: TracingConfig{
			Enabled:     tc.Enabled,
			Endpoint:    tc.Endpoint,
			Insecure:    tc.Insecure,
			SampleRatio: tc.SampleRatio,
		},
	}
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".spielpendium.yaml",
		".spielpendium.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "spielpendium", "config.yaml"),
			filepath.Join(home, ".config", "spielpendium", "config.yml"),
			filepath.Join(home, ".spielpendium.yaml"),
		)
	}

	return paths
}

// DefaultPath is where `config init` writes a new file.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "spielpendium", "config.yaml")
	}
	return ".spielpendium.yaml"
}

// Load loads configuration from file or returns defaults.
// Priority: explicit path > env SPIELPENDIUM_CONFIG > search paths > defaults.
// Environment overrides are applied last.
func Load(explicit string) (*Config, string, error) {
	cfg := DefaultConfig()

	source := explicit
	if source == "" {
		source = os.Getenv("SPIELPENDIUM_CONFIG")
	}
	if source != "" {
		if err := cfg.loadFromFile(source); err != nil {
			return nil, "", err
		}
	} else {
		for _, path := range configPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := cfg.loadFromFile(path); err != nil {
					return nil, "", err
				}
				source = path
				break
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, source, err
	}
	return cfg, source, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFoundError("config file", path)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPIELPENDIUM_ARCHIVE"); v != "" {
		c.ArchivePath = v
	}
	if v := os.Getenv("SPIELPENDIUM_CACHE"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("SPIELPENDIUM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	var bad []string
	if c.Catalog.Timeout < 0 {
		bad = append(bad, "catalog.timeout")
	}
	if c.Catalog.RateLimit < 0 {
		bad = append(bad, "catalog.rate_limit")
	}
	if c.Catalog.RetryAttempts < 0 {
		bad = append(bad, "catalog.retry_attempts")
	}
	if c.Catalog.RetryDelay < 0 {
		bad = append(bad, "catalog.retry_delay")
	}
	if c.Catalog.ChunkSize < 0 {
		bad = append(bad, "catalog.chunk_size")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		bad = append(bad, "tracing.sample_ratio")
	}
	if c.Import.Workers < 0 {
		bad = append(bad, "import.workers")
	}
	if c.Import.ImageSize < 0 {
		bad = append(bad, "import.image_size")
	}
	if _, err := bgg.ParseImagePolicy(c.Import.ImagePolicy); err != nil {
		bad = append(bad, "import.image_policy")
	}
	if c.ArchivePath != "" && !strings.HasSuffix(c.ArchivePath, ".splz") {
		bad = append(bad, "archive_path")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		bad = append(bad, "logging.format")
	}
	if len(bad) > 0 {
		return apperr.Invalid("config", "", errors.New("invalid settings"), bad...)
	}
	return nil
}

// GetArchivePath returns the archive path, applying defaults.
func (c *Config) GetArchivePath() string {
	if c.ArchivePath != "" {
		return c.ArchivePath
	}
	return defaultArchive
}

// GetCachePath returns the response cache database path.
func (c *Config) GetCachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return defaultCache
}

// GetImagePolicy returns the parsed image policy.
func (c *Config) GetImagePolicy() bgg.ImagePolicy {
	p, err := bgg.ParseImagePolicy(c.Import.ImagePolicy)
	if err != nil {
		return bgg.PolicyPlaceholder
	}
	return p
}

// RetryPolicy builds the catalog retry policy.
func (c *Config) RetryPolicy() bgg.RetryPolicy {
	p := bgg.DefaultRetryPolicy()
	if c.Catalog.RetryAttempts > 0 {
		p.MaxAttempts = c.Catalog.RetryAttempts
	}
	if c.Catalog.RetryDelay > 0 {
		p.Delay = c.Catalog.RetryDelay
	}
	return p
}

// ImportOptions builds import options from the config.
func (c *Config) ImportOptions() bgg.ImportOptions {
	return bgg.ImportOptions{
		ChunkSize: c.Catalog.ChunkSize,
		Workers:   c.Import.Workers,
		ImageSize: c.Import.ImageSize,
		Policy:    c.GetImagePolicy(),
	}
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Format:     c.Logging.Format,
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// TraceConfig converts the tracing section.
func (c *Config) TraceConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Example returns a commented configuration file with default values.
func Example() string {
	d := DefaultConfig()
	return fmt.Sprintf(`# spielpendium configuration

# Collection archive used when --archive is not given.
archive_path: %s

cache:
  # sqlite database holding raw catalog responses
  path: %s
  # responses older than this are fetched again (0 keeps them forever)
  max_age: %s

catalog:
  base_url: %s
  timeout: %s
  rate_limit: %g
  burst: %d
  # how often to ask again while the catalog is still generating a response
  retry_attempts: %d
  retry_delay: %s
  chunk_size: %d

import:
  workers: 0 # 0 = number of CPUs
  image_size: %d
  # abort, placeholder or skip
  image_policy: %s

logging:
  format: %s
  level: %s
  file: ""
  max_size_mb: %d
  max_backups: %d
  max_age_days: %d

tracing:
  # also enabled by OTEL_EXPORTER_OTLP_ENDPOINT
  enabled: false
  endpoint: ""
  insecure: %t
  sample_ratio: %g
`,
		d.ArchivePath,
		d.Cache.Path, d.Cache.MaxAge,
		d.Catalog.BaseURL, d.Catalog.Timeout, d.Catalog.RateLimit, d.Catalog.Burst,
		d.Catalog.RetryAttempts, d.Catalog.RetryDelay, d.Catalog.ChunkSize,
		d.Import.ImageSize, d.Import.ImagePolicy,
		d.Logging.Format, d.Logging.Level, d.Logging.MaxSizeMB, d.Logging.MaxBackups, d.Logging.MaxAgeDays,
		d.Tracing.Insecure, d.Tracing.SampleRatio,
	)
}
