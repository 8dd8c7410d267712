// Package extension provides the Forge extension adapter for the capacity
// engine.
//
// It implements the forge.Extension interface to integrate the engine into
// a Forge application with DI registration and lifecycle management. The
// engine and, unless routes are disabled, its *api.Handler are provided to
// the container; the application mounts the handler on its router.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.capacity" or "capacity" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/api"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store"
	"github.com/xraph/capacity/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "capacity"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Quota and resource accounting engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the capacity engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *capacity.Engine
	handler    *api.Handler
	store      store.Store
	resources  []*resource.Resource
	engineOpts []capacity.Option
	apiOpts    []api.Option
}

// New creates a new capacity Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *capacity.Engine { return e.engine }

// Handler returns the HTTP handler, or nil when routes are disabled.
func (e *Extension) Handler() *api.Handler { return e.handler }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := append(e.config.EngineOptions(), e.engineOpts...)
	e.engine = capacity.New(e.store, opts...)

	if err := vessel.Provide(fapp.Container(), func() (*capacity.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}

	apiOpts := append([]api.Option{api.WithBasePath(e.config.BasePath)}, e.apiOpts...)
	e.handler = api.New(e.engine, apiOpts...)
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("capacity: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	if len(e.resources) > 0 {
		if err := e.engine.SeedResources(ctx, e.resources...); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("capacity: extension not initialized")
	}
	return e.engine.Health(ctx)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("capacity: configuration is required but not found in config files; " +
				"ensure 'extensions.capacity' or 'capacity' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("capacity: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("sample_batch_size", e.config.SampleBatchSize),
		forge.F("sample_flush_interval", e.config.SampleFlushInterval),
		forge.F("capture_interval", e.config.CaptureInterval),
		forge.F("catalog_cache_ttl", e.config.CatalogCacheTTL),
		forge.F("commit_attempts", e.config.CommitAttempts),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.capacity", "capacity"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("capacity: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("capacity: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}
