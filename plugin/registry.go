package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry holds registered plugins with their hook interfaces cached by type.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit              []OnInit
	onShutdown          []OnShutdown
	onQuotasUploaded    []OnQuotasUploaded
	onOverQuota         []OnOverQuota
	onTransferSimulated []OnTransferSimulated
	onTransferCommitted []OnTransferCommitted
	onTransferRejected  []OnTransferRejected
	onSamplesFlushed    []OnSamplesFlushed
	directories         []ProductDirectory
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnQuotasUploaded); ok {
		r.onQuotasUploaded = append(r.onQuotasUploaded, v)
		hooks = append(hooks, "OnQuotasUploaded")
	}
	if v, ok := p.(OnOverQuota); ok {
		r.onOverQuota = append(r.onOverQuota, v)
		hooks = append(hooks, "OnOverQuota")
	}
	if v, ok := p.(OnTransferSimulated); ok {
		r.onTransferSimulated = append(r.onTransferSimulated, v)
		hooks = append(hooks, "OnTransferSimulated")
	}
	if v, ok := p.(OnTransferCommitted); ok {
		r.onTransferCommitted = append(r.onTransferCommitted, v)
		hooks = append(hooks, "OnTransferCommitted")
	}
	if v, ok := p.(OnTransferRejected); ok {
		r.onTransferRejected = append(r.onTransferRejected, v)
		hooks = append(hooks, "OnTransferRejected")
	}
	if v, ok := p.(OnSamplesFlushed); ok {
		r.onSamplesFlushed = append(r.onSamplesFlushed, v)
		hooks = append(hooks, "OnSamplesFlushed")
	}
	if v, ok := p.(ProductDirectory); ok {
		r.directories = append(r.directories, v)
		hooks = append(hooks, "ProductDirectory")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ProductDirectories returns the registered product directories.
func (r *Registry) ProductDirectories() []ProductDirectory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ProductDirectory, len(r.directories))
	copy(result, r.directories)
	return result
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnInit", func() error { return p.OnInit(ctx, engine) })
	}
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

func (r *Registry) EmitQuotasUploaded(ctx context.Context, productID string, quotas []*quota.Quota) {
	r.mu.RLock()
	plugins := r.onQuotasUploaded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnQuotasUploaded", func() error { return p.OnQuotasUploaded(ctx, productID, quotas) })
	}
}

func (r *Registry) EmitOverQuota(ctx context.Context, q *quota.Quota) {
	r.mu.RLock()
	plugins := r.onOverQuota
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnOverQuota", func() error { return p.OnOverQuota(ctx, q) })
	}
}

func (r *Registry) EmitTransferSimulated(ctx context.Context, sim *transfer.Simulation) {
	r.mu.RLock()
	plugins := r.onTransferSimulated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnTransferSimulated", func() error { return p.OnTransferSimulated(ctx, sim) })
	}
}

func (r *Registry) EmitTransferCommitted(ctx context.Context, res *transfer.Result) {
	r.mu.RLock()
	plugins := r.onTransferCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnTransferCommitted", func() error { return p.OnTransferCommitted(ctx, res) })
	}
}

func (r *Registry) EmitTransferRejected(ctx context.Context, d transfer.Draft, reason error) {
	r.mu.RLock()
	plugins := r.onTransferRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnTransferRejected", func() error { return p.OnTransferRejected(ctx, d, reason) })
	}
}

func (r *Registry) EmitSamplesFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSamplesFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p, "OnSamplesFlushed", func() error { return p.OnSamplesFlushed(ctx, count, elapsed) })
	}
}

// dispatch runs one hook and logs its failure. Hook errors never reach the
// caller of the engine operation.
func (r *Registry) dispatch(ctx context.Context, p Plugin, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, p.Name(), fn); err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", p.Name(),
			"hook", hook,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
