package capacity

import (
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/transfer"
	"github.com/xraph/capacity/types"
	"github.com/xraph/capacity/usage"
)

// Re-exports so that callers rarely need the model packages directly.

type (
	Entity     = types.Entity
	Resource   = resource.Resource
	Quota      = quota.Quota
	Allocation = quota.Allocation
	Draft      = transfer.Draft
	Snapshot   = transfer.Snapshot
	Simulation = transfer.Simulation
	Result     = transfer.Result
	Series     = usage.Series
	Sample     = usage.Sample
)

var NewEntity = types.NewEntity
