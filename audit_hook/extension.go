// Package audithook bridges capacity engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/plugin"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnQuotasUploaded    = (*Extension)(nil)
	_ plugin.OnOverQuota         = (*Extension)(nil)
	_ plugin.OnTransferSimulated = (*Extension)(nil)
	_ plugin.OnTransferCommitted = (*Extension)(nil)
	_ plugin.OnTransferRejected  = (*Extension)(nil)
	_ plugin.OnSamplesFlushed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges capacity engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotasUploaded implements plugin.OnQuotasUploaded.
func (e *Extension) OnQuotasUploaded(ctx context.Context, productID string, quotas []*quota.Quota) error {
	resources := make([]string, len(quotas))
	for i, q := range quotas {
		resources[i] = q.ResourceID
	}
	return e.record(ctx, ActionQuotasUploaded, SeverityInfo, OutcomeSuccess,
		ResourceQuota, productID, CategoryAllocation, nil,
		"product_id", productID,
		"resources", resources,
	)
}

// OnOverQuota implements plugin.OnOverQuota.
func (e *Extension) OnOverQuota(ctx context.Context, q *quota.Quota) error {
	return e.record(ctx, ActionQuotaOver, SeverityWarning, OutcomeSuccess,
		ResourceQuota, q.ID.String(), CategoryAllocation, nil,
		"product_id", q.ProductID,
		"resource_id", q.ResourceID,
		"limit", q.Limit,
		"usage", q.Usage,
	)
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferSimulated implements plugin.OnTransferSimulated. Only
// infeasible simulations are audited.
func (e *Extension) OnTransferSimulated(ctx context.Context, sim *transfer.Simulation) error {
	if sim.Feasible {
		return nil
	}
	reason := capacity.ErrInsufficientLimit
	if sim.From.Projected.Limit >= 0 {
		reason = capacity.ErrLimitOverflow
	}
	return e.record(ctx, ActionTransferSimulated, SeverityInfo, OutcomeFailure,
		ResourceTransfer, sim.ID.String(), CategoryAllocation, reason,
		draftPairs(sim.Draft, "snapshot", sim.Token)...,
	)
}

// OnTransferCommitted implements plugin.OnTransferCommitted.
func (e *Extension) OnTransferCommitted(ctx context.Context, res *transfer.Result) error {
	return e.record(ctx, ActionTransferCommitted, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, res.ID.String(), CategoryAllocation, nil,
		draftPairs(res.Draft,
			"attempts", res.Attempts,
			"from_revision", res.From.Revision,
			"to_revision", res.To.Revision,
		)...,
	)
}

// OnTransferRejected implements plugin.OnTransferRejected.
func (e *Extension) OnTransferRejected(ctx context.Context, d transfer.Draft, reason error) error {
	severity := SeverityInfo
	if errors.Is(reason, capacity.ErrConflict) {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionTransferRejected, severity, OutcomeFailure,
		ResourceTransfer, "", CategoryAllocation, reason,
		draftPairs(d)...,
	)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnSamplesFlushed implements plugin.OnSamplesFlushed.
func (e *Extension) OnSamplesFlushed(ctx context.Context, count int, elapsed time.Duration) error {
	return e.record(ctx, ActionSamplesFlushed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, "", CategoryUsage, nil,
		"count", count,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

func draftPairs(d transfer.Draft, extra ...any) []any {
	kv := []any{
		"from_product_id", d.FromProductID,
		"to_product_id", d.ToProductID,
		"resource_id", d.ResourceID,
		"amount", d.Amount,
	}
	return append(kv, extra...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
