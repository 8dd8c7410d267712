// Package capacity is a quota and resource accounting engine.
//
// For every product it tracks how much of each finite resource (CPU cores,
// memory bytes, ...) is allocated (the limit), how much is in use (usage,
// written by the provisioning system) and how much is free. Limits move
// between products through a two-phase transfer:
//
//	sim, err := engine.SimulateTransfer(ctx, transfer.Draft{
//	    FromProductID: "prod-x",
//	    ToProductID:   "prod-y",
//	    ResourceID:    "cpu",
//	    Amount:        300,
//	})
//	// show sim.From.Projected / sim.To.Projected to the operator, then:
//	res, err := engine.CommitTransfer(ctx, sim.Draft, sim.Snapshot)
//	switch {
//	case errors.Is(err, capacity.ErrConflict):
//	    // someone changed either record since the simulation; simulate again
//	case errors.Is(err, capacity.ErrInsufficientLimit):
//	    // the source cannot give that much
//	}
//
// A simulation captures the revision of both records. The commit writes both
// records in one atomic compare-and-swap against those revisions, retrying a
// bounded number of times, so two operators working from the same view can
// never both succeed.
//
// # Stores
//
// The engine runs on any store.Store: store/memory for tests and single
// nodes, or store/postgres, store/sqlite and store/mongo on top of Grove.
//
//	engine := capacity.New(memory.New(),
//	    capacity.WithLogger(logger),
//	    capacity.WithCommitAttempts(3),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop()
//
// # Quantities
//
// All quantities are int64 in the resource's base unit: milli-cores for
// CORES and bytes for BYTES. Converting to display units is left to callers.
package capacity
