// Package plugin lets callers hook into engine events. A plugin implements
// Plugin plus any subset of the hook interfaces below; the Registry discovers
// which ones at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called from Engine.Start. The engine is passed as any to keep
// this package free of an import cycle.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called from Engine.Stop.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnQuotasUploaded is called after an upload batch has been written.
type OnQuotasUploaded interface {
	Plugin
	OnQuotasUploaded(ctx context.Context, productID string, quotas []*quota.Quota) error
}

// OnOverQuota is called when a write leaves a record with usage above its limit.
type OnOverQuota interface {
	Plugin
	OnOverQuota(ctx context.Context, q *quota.Quota) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferSimulated is called for every simulation, feasible or not.
type OnTransferSimulated interface {
	Plugin
	OnTransferSimulated(ctx context.Context, sim *transfer.Simulation) error
}

// OnTransferCommitted is called after both records have been written.
type OnTransferCommitted interface {
	Plugin
	OnTransferCommitted(ctx context.Context, res *transfer.Result) error
}

// OnTransferRejected is called when a commit ends in a conflict or an
// insufficient limit.
type OnTransferRejected interface {
	Plugin
	OnTransferRejected(ctx context.Context, d transfer.Draft, reason error) error
}

// ──────────────────────────────────────────────────
// Sampling hooks
// ──────────────────────────────────────────────────

// OnSamplesFlushed is called when buffered usage samples reach the store.
type OnSamplesFlushed interface {
	Plugin
	OnSamplesFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Collaborators
// ──────────────────────────────────────────────────

// ProductDirectory answers whether a product exists. Products are managed
// outside the engine; without a directory every non-empty ID is accepted.
type ProductDirectory interface {
	Plugin
	ProductExists(ctx context.Context, productID string) (bool, error)
}
