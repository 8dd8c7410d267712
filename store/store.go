// Package store defines the aggregate persistence interface the engine runs
// on. Backends live in the memory, postgres, sqlite and mongo subpackages.
package store

import (
	"context"

	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/usage"
)

// Store is the unified storage interface for catalog, ledger and samples.
type Store interface {
	resource.Store
	quota.Store
	usage.Store

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
