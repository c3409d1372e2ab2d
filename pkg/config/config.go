// Package config provides configuration management for the enmassa
// pipeline: catalog endpoints, worker pool sizes, retry policies, cache
// backends, and output locations.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// CatalogConfig defines how the catalog API is reached.
type CatalogConfig struct {
	// BaseURL is the root of the catalog API.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// PageSize is how many items one catalog page request asks for.
	PageSize int `json:"page_size" yaml:"page_size"`

	// RequestTimeout bounds one catalog API request.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// HarvestConfig defines the page-fetch phase.
type HarvestConfig struct {
	// Workers is the page-fetch pool size.
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is how many times a failed page is refetched before the
	// page is skipped.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base of the linear backoff between page retries.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// CacheConfig selects and configures the metadata cache backend.
type CacheConfig struct {
	// Backend is one of filesystem, memory, redis, s3, gcs.
	Backend string `json:"backend" yaml:"backend"`

	// Settings holds backend-specific keys, passed to Backend.Init.
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// MetadataConfig defines the per-chapter metadata phase.
type MetadataConfig struct {
	// Workers is the metadata resolution pool size.
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is how many times a failed metadata fetch is retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base of the linear backoff between retries.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// Cache configures the durable metadata cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`
}

// DownloadConfig defines the transfer phase.
type DownloadConfig struct {
	// Workers is the download pool size.
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is how many times one asset transfer is retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the first backoff delay; later delays double up to
	// MaxDelay.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Timeout bounds one complete asset transfer.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MinFreeSpace is the free-space floor checked before a run starts.
	// Zero disables the check.
	MinFreeSpace int64 `json:"min_free_space" yaml:"min_free_space"`
}

// OutputConfig defines where run artifacts land.
type OutputConfig struct {
	// DestRoot is the directory under which the program-named download
	// directory is created.
	DestRoot string `json:"dest_root" yaml:"dest_root"`

	// ManifestPath is where the JSON manifest is written.
	ManifestPath string `json:"manifest_path" yaml:"manifest_path"`

	// LinksCSVPath is where the human-readable link listing is written.
	LinksCSVPath string `json:"links_csv_path,omitempty" yaml:"links_csv_path,omitempty"`

	// FailedIDsPath is where unresolvable chapter ids are recorded.
	FailedIDsPath string `json:"failed_ids_path,omitempty" yaml:"failed_ids_path,omitempty"`

	// ShowProgress enables the terminal progress display.
	ShowProgress bool `json:"show_progress" yaml:"show_progress"`

	// Quiet suppresses everything except errors and the final summary.
	Quiet bool `json:"quiet" yaml:"quiet"`
}

// Config is the complete enmassa configuration.
type Config struct {
	Version  string         `json:"version" yaml:"version"`
	Catalog  CatalogConfig  `json:"catalog" yaml:"catalog"`
	Harvest  HarvestConfig  `json:"harvest" yaml:"harvest"`
	Metadata MetadataConfig `json:"metadata" yaml:"metadata"`
	Download DownloadConfig `json:"download" yaml:"download"`
	Output   OutputConfig   `json:"output" yaml:"output"`
}

// DefaultConfig returns a configuration with sensible default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: "1.0",
		Catalog: CatalogConfig{
			PageSize:       100,
			RequestTimeout: 30 * time.Second,
		},
		Harvest: HarvestConfig{
			Workers:    4,
			MaxRetries: 3,
			RetryDelay: 1 * time.Second,
		},
		Metadata: MetadataConfig{
			Workers:    4,
			MaxRetries: 3,
			RetryDelay: 500 * time.Millisecond,
			Cache: CacheConfig{
				Backend: "filesystem",
				Settings: map[string]interface{}{
					"basePath": filepath.Join(homeDir, ".enmassa", "cache"),
				},
			},
		},
		Download: DownloadConfig{
			Workers:      3,
			MaxRetries:   4,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Timeout:      30 * time.Minute,
			MinFreeSpace: 100 * 1024 * 1024,
		},
		Output: OutputConfig{
			DestRoot:      filepath.Join(homeDir, "Downloads"),
			ManifestPath:  "manifest.json",
			LinksCSVPath:  "links.csv",
			FailedIDsPath: "failed_ids.txt",
			ShowProgress:  true,
		},
	}
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "enmassa", "config.yaml"), nil
}

// Loader handles loading and saving configuration files. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON.
type Loader struct {
	configPath string
}

// NewLoader creates a loader for the given path.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file, falling back to defaults when the
// file does not exist. Missing fields inherit their defaults.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", l.configPath, err)
	}

	var config Config

	if isYAML(l.configPath) {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", l.configPath, err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Save writes the configuration to the loader's path, creating parent
// directories as needed.
func (l *Loader) Save(config *Config) error {
	configDir := filepath.Dir(l.configPath)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("creating config directory %s: %w", configDir, err)
	}

	var data []byte
	var err error

	if isYAML(l.configPath) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(l.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", l.configPath, err)
	}

	return nil
}

// Validate rejects configurations that cannot drive a run.
func (c *Config) Validate() error {
	if c.Harvest.Workers < 1 {
		return fmt.Errorf("harvest.workers must be at least 1, got %d", c.Harvest.Workers)
	}

	if c.Metadata.Workers < 1 {
		return fmt.Errorf("metadata.workers must be at least 1, got %d", c.Metadata.Workers)
	}

	if c.Download.Workers < 1 {
		return fmt.Errorf("download.workers must be at least 1, got %d", c.Download.Workers)
	}

	if c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog.page_size must be at least 1, got %d", c.Catalog.PageSize)
	}

	switch c.Metadata.Cache.Backend {
	case "filesystem", "memory", "redis", "s3", "gcs":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Metadata.Cache.Backend)
	}

	if c.Download.MinFreeSpace < 0 {
		return fmt.Errorf("download.min_free_space must not be negative, got %d", c.Download.MinFreeSpace)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Version == "" {
		config.Version = defaults.Version
	}

	if config.Catalog.PageSize == 0 {
		config.Catalog.PageSize = defaults.Catalog.PageSize
	}
	if config.Catalog.RequestTimeout == 0 {
		config.Catalog.RequestTimeout = defaults.Catalog.RequestTimeout
	}

	if config.Harvest.Workers == 0 {
		config.Harvest.Workers = defaults.Harvest.Workers
	}
	if config.Harvest.MaxRetries == 0 {
		config.Harvest.MaxRetries = defaults.Harvest.MaxRetries
	}
	if config.Harvest.RetryDelay == 0 {
		config.Harvest.RetryDelay = defaults.Harvest.RetryDelay
	}

	if config.Metadata.Workers == 0 {
		config.Metadata.Workers = defaults.Metadata.Workers
	}
	if config.Metadata.MaxRetries == 0 {
		config.Metadata.MaxRetries = defaults.Metadata.MaxRetries
	}
	if config.Metadata.RetryDelay == 0 {
		config.Metadata.RetryDelay = defaults.Metadata.RetryDelay
	}
	if config.Metadata.Cache.Backend == "" {
		config.Metadata.Cache.Backend = defaults.Metadata.Cache.Backend
		if config.Metadata.Cache.Settings == nil {
			config.Metadata.Cache.Settings = defaults.Metadata.Cache.Settings
		}
	}

	if config.Download.Workers == 0 {
		config.Download.Workers = defaults.Download.Workers
	}
	if config.Download.MaxRetries == 0 {
		config.Download.MaxRetries = defaults.Download.MaxRetries
	}
	if config.Download.BaseDelay == 0 {
		config.Download.BaseDelay = defaults.Download.BaseDelay
	}
	if config.Download.MaxDelay == 0 {
		config.Download.MaxDelay = defaults.Download.MaxDelay
	}
	if config.Download.Timeout == 0 {
		config.Download.Timeout = defaults.Download.Timeout
	}

	if config.Output.DestRoot == "" {
		config.Output.DestRoot = defaults.Output.DestRoot
	}
	if config.Output.ManifestPath == "" {
		config.Output.ManifestPath = defaults.Output.ManifestPath
	}
}
