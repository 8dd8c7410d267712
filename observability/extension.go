// Package observability provides a metrics extension for the capacity engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/plugin"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnQuotasUploaded    = (*MetricsExtension)(nil)
	_ plugin.OnOverQuota         = (*MetricsExtension)(nil)
	_ plugin.OnTransferSimulated = (*MetricsExtension)(nil)
	_ plugin.OnTransferCommitted = (*MetricsExtension)(nil)
	_ plugin.OnTransferRejected  = (*MetricsExtension)(nil)
	_ plugin.OnSamplesFlushed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to track allocation activity.
type MetricsExtension struct {
	factory MetricFactory

	// Quota metrics
	QuotaUploads     Counter
	QuotaUploadItems Histogram
	QuotaOver        Counter

	// Transfer metrics
	TransferSimulated  Counter
	TransferInfeasible Counter
	TransferCommitted  Counter
	TransferConflicts  Counter
	TransferShortfalls Counter
	TransferAttempts   Histogram
	TransferAmount     Histogram

	// Usage metrics
	SamplesFlushed    Counter
	SampleFlushSize   Histogram
	SampleFlushMillis Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		QuotaUploads:     factory.Counter("capacity.quota.uploads"),
		QuotaUploadItems: factory.Histogram("capacity.quota.upload.items"),
		QuotaOver:        factory.Counter("capacity.quota.over"),

		TransferSimulated:  factory.Counter("capacity.transfer.simulated"),
		TransferInfeasible: factory.Counter("capacity.transfer.infeasible"),
		TransferCommitted:  factory.Counter("capacity.transfer.committed"),
		TransferConflicts:  factory.Counter("capacity.transfer.conflicts"),
		TransferShortfalls: factory.Counter("capacity.transfer.insufficient"),
		TransferAttempts:   factory.Histogram("capacity.transfer.attempts"),
		TransferAmount:     factory.Histogram("capacity.transfer.amount"),

		SamplesFlushed:    factory.Counter("capacity.usage.samples.flushed"),
		SampleFlushSize:   factory.Histogram("capacity.usage.flush.size"),
		SampleFlushMillis: factory.Histogram("capacity.usage.flush.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotasUploaded implements plugin.OnQuotasUploaded.
func (m *MetricsExtension) OnQuotasUploaded(_ context.Context, _ string, quotas []*quota.Quota) error {
	m.QuotaUploads.Inc()
	m.QuotaUploadItems.Observe(float64(len(quotas)))
	return nil
}

// OnOverQuota implements plugin.OnOverQuota.
func (m *MetricsExtension) OnOverQuota(_ context.Context, _ *quota.Quota) error {
	m.QuotaOver.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferSimulated implements plugin.OnTransferSimulated.
func (m *MetricsExtension) OnTransferSimulated(_ context.Context, sim *transfer.Simulation) error {
	m.TransferSimulated.Inc()
	if !sim.Feasible {
		m.TransferInfeasible.Inc()
	}
	return nil
}

// OnTransferCommitted implements plugin.OnTransferCommitted.
func (m *MetricsExtension) OnTransferCommitted(_ context.Context, res *transfer.Result) error {
	m.TransferCommitted.Inc()
	m.TransferAttempts.Observe(float64(res.Attempts))
	m.TransferAmount.Observe(float64(res.Draft.Amount))
	return nil
}

// OnTransferRejected implements plugin.OnTransferRejected.
func (m *MetricsExtension) OnTransferRejected(_ context.Context, _ transfer.Draft, reason error) error {
	switch {
	case errors.Is(reason, capacity.ErrConflict):
		m.TransferConflicts.Inc()
	case errors.Is(reason, capacity.ErrInsufficientLimit):
		m.TransferShortfalls.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnSamplesFlushed implements plugin.OnSamplesFlushed.
func (m *MetricsExtension) OnSamplesFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.SamplesFlushed.Add(float64(count))
	m.SampleFlushSize.Observe(float64(count))
	m.SampleFlushMillis.Observe(float64(elapsed.Milliseconds()))
	return nil
}
