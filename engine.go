package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/capacity/plugin"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store"
	"github.com/xraph/capacity/usage"
)

// DefaultCommitAttempts bounds the compare-and-swap loop of CommitTransfer.
const DefaultCommitAttempts = 3

// Engine is the quota and resource accounting engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	// Background workers
	sampleBuffer chan *usage.Sample
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// Catalog cache
	catalogMu       sync.RWMutex
	catalogByID     map[string]*resource.Resource
	catalogList     []*resource.Resource
	catalogLoadedAt time.Time
	catalogGen      uint64

	// Configuration
	sampleBufferSize    int
	sampleBatchSize     int
	sampleFlushInterval time.Duration
	captureInterval     time.Duration
	catalogCacheTTL     time.Duration
	commitAttempts      int
	reportPageSize      int
	skipMigrate         bool
}

// New creates a new Engine on top of s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:               s,
		plugins:             plugin.NewRegistry(),
		logger:              slog.Default(),
		now:                 func() time.Time { return time.Now().UTC() },
		stopChan:            make(chan struct{}),
		sampleBufferSize:    10000,
		sampleBatchSize:     100,
		sampleFlushInterval: 5 * time.Second,
		catalogCacheTTL:     30 * time.Second,
		commitAttempts:      DefaultCommitAttempts,
		reportPageSize:      500,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.sampleBuffer = make(chan *usage.Sample, e.sampleBufferSize)
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSampleConfig configures buffered sample ingestion.
func WithSampleConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		if batchSize > 0 {
			e.sampleBatchSize = batchSize
		}
		if flushInterval > 0 {
			e.sampleFlushInterval = flushInterval
		}
	}
}

// WithSampleBufferSize sets how many samples RecordSample may queue.
func WithSampleBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sampleBufferSize = n
		}
	}
}

// WithCaptureInterval makes Start run CaptureSamples periodically.
// Zero disables periodic capture.
func WithCaptureInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.captureInterval = d
	}
}

// WithCatalogCacheTTL sets how long the resource catalog is cached.
// A non-positive TTL reads the catalog from the store on every call.
func WithCatalogCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.catalogCacheTTL = ttl
	}
}

// WithCommitAttempts sets the bound of the commit retry loop.
func WithCommitAttempts(n int) Option {
	return func(e *Engine) {
		e.commitAttempts = max(1, n)
	}
}

// WithReportPageSize sets how many samples a report reads per store query.
func WithReportPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.reportPageSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithoutMigrate skips store migration in Start.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	workerCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)
	go e.sampleFlushWorker(workerCtx)

	if e.captureInterval > 0 {
		e.wg.Add(1)
		go e.captureWorker(workerCtx)
	}

	e.logger.Info("capacity engine started",
		"batch_size", e.sampleBatchSize,
		"flush_interval", e.sampleFlushInterval,
		"capture_interval", e.captureInterval,
		"catalog_cache_ttl", e.catalogCacheTTL,
		"commit_attempts", e.commitAttempts,
	)

	return nil
}

// Stop drains background workers, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// Health pings the store.
func (e *Engine) Health(ctx context.Context) error {
	return storeErr("ping", e.store.Ping(ctx))
}

// checkProduct rejects empty product IDs and, when product directories are
// registered, IDs that none of them knows.
func (e *Engine) checkProduct(ctx context.Context, productID string) error {
	if productID == "" {
		return fmt.Errorf("%w: empty product id", ErrUnknownProduct)
	}

	dirs := e.plugins.ProductDirectories()
	if len(dirs) == 0 {
		return nil
	}
	for _, d := range dirs {
		ok, err := d.ProductExists(ctx, productID)
		if err != nil {
			return storeErr("product lookup", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
}
