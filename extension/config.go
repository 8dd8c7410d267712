package extension

import (
	"time"

	"github.com/xraph/capacity"
)

// Config holds the capacity extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.capacity" or "capacity" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being built and provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for capacity routes (default: "/capacity").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// SampleBatchSize is the number of usage samples to buffer before
	// flushing to the store (default: 100).
	SampleBatchSize int `json:"sample_batch_size" mapstructure:"sample_batch_size" yaml:"sample_batch_size"`

	// SampleFlushInterval is how frequently the sample buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	SampleFlushInterval time.Duration `json:"sample_flush_interval" mapstructure:"sample_flush_interval" yaml:"sample_flush_interval"`

	// CaptureInterval turns on periodic snapshots of every quota record
	// into the usage history. Zero disables it.
	CaptureInterval time.Duration `json:"capture_interval" mapstructure:"capture_interval" yaml:"capture_interval"`

	// CatalogCacheTTL controls how long the resource catalog is cached
	// in-process (default: 30s).
	CatalogCacheTTL time.Duration `json:"catalog_cache_ttl" mapstructure:"catalog_cache_ttl" yaml:"catalog_cache_ttl"`

	// CommitAttempts bounds the compare-and-swap attempts of one transfer
	// commit (default: 3).
	CommitAttempts int `json:"commit_attempts" mapstructure:"commit_attempts" yaml:"commit_attempts"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:            "/capacity",
		SampleBatchSize:     100,
		SampleFlushInterval: 5 * time.Second,
		CatalogCacheTTL:     30 * time.Second,
		CommitAttempts:      3,
	}
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.SampleBatchSize == 0 {
		cfg.SampleBatchSize = defaults.SampleBatchSize
	}
	if cfg.SampleFlushInterval == 0 {
		cfg.SampleFlushInterval = defaults.SampleFlushInterval
	}
	if cfg.CatalogCacheTTL == 0 {
		cfg.CatalogCacheTTL = defaults.CatalogCacheTTL
	}
	if cfg.CommitAttempts == 0 {
		cfg.CommitAttempts = defaults.CommitAttempts
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SampleBatchSize == 0 && programmaticConfig.SampleBatchSize != 0 {
		yamlConfig.SampleBatchSize = programmaticConfig.SampleBatchSize
	}
	if yamlConfig.SampleFlushInterval == 0 && programmaticConfig.SampleFlushInterval != 0 {
		yamlConfig.SampleFlushInterval = programmaticConfig.SampleFlushInterval
	}
	if yamlConfig.CaptureInterval == 0 && programmaticConfig.CaptureInterval != 0 {
		yamlConfig.CaptureInterval = programmaticConfig.CaptureInterval
	}
	if yamlConfig.CatalogCacheTTL == 0 && programmaticConfig.CatalogCacheTTL != 0 {
		yamlConfig.CatalogCacheTTL = programmaticConfig.CatalogCacheTTL
	}
	if yamlConfig.CommitAttempts == 0 && programmaticConfig.CommitAttempts != 0 {
		yamlConfig.CommitAttempts = programmaticConfig.CommitAttempts
	}

	return mergeWithDefaults(yamlConfig)
}

// EngineOptions translates the config into engine options. Zero fields
// take their defaults.
func (c Config) EngineOptions() []capacity.Option {
	cfg := mergeWithDefaults(c)
	opts := []capacity.Option{
		capacity.WithSampleConfig(cfg.SampleBatchSize, cfg.SampleFlushInterval),
		capacity.WithCatalogCacheTTL(cfg.CatalogCacheTTL),
		capacity.WithCommitAttempts(cfg.CommitAttempts),
	}
	if cfg.CaptureInterval > 0 {
		opts = append(opts, capacity.WithCaptureInterval(cfg.CaptureInterval))
	}
	if cfg.DisableMigrate {
		opts = append(opts, capacity.WithoutMigrate())
	}
	return opts
}
