package extension

import (
	"time"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/api"
	"github.com/xraph/capacity/plugin"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store"
)

// Option configures the capacity Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine. Build it from a grove.DB with
// store/postgres, store/sqlite or store/mongo.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a capacity.Option through to the underlying engine.
func WithEngineOption(opt capacity.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithAPIOption passes an api.Option through to the HTTP handler.
func WithAPIOption(opt api.Option) Option {
	return func(e *Extension) {
		e.apiOpts = append(e.apiOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, capacity.WithPlugin(p))
	}
}

// WithResources seeds the resource catalog on Start.
func WithResources(resources ...*resource.Resource) Option {
	return func(e *Extension) {
		e.resources = append(e.resources, resources...)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP handler from being built.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for capacity routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSampleBatchSize sets the number of usage samples to buffer before flushing.
func WithSampleBatchSize(size int) Option {
	return func(e *Extension) { e.config.SampleBatchSize = size }
}

// WithSampleFlushInterval sets how frequently the sample buffer is flushed.
func WithSampleFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SampleFlushInterval = d }
}

// WithCaptureInterval enables periodic quota snapshots.
func WithCaptureInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.CaptureInterval = d }
}

// WithCatalogCacheTTL sets the resource catalog cache duration.
func WithCatalogCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.CatalogCacheTTL = d }
}

// WithCommitAttempts sets the bound of the transfer commit retry loop.
func WithCommitAttempts(n int) Option {
	return func(e *Extension) { e.config.CommitAttempts = n }
}
