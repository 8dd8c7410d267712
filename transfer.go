package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

// SimulateTransfer computes the balances both products would have after d
// and captures the revisions it read. It never writes and never fails on
// an infeasible amount: Feasible reports whether the source limit would stay
// non-negative and the destination limit would stay within int64. When it
// would not, the projected destination limit is capped at math.MaxInt64.
func (e *Engine) SimulateTransfer(ctx context.Context, d transfer.Draft) (*transfer.Simulation, error) {
	if err := e.validateDraft(ctx, d); err != nil {
		return nil, err
	}

	from, to, err := e.readPair(ctx, d)
	if err != nil {
		return nil, err
	}

	fromNow, toNow := quota.BalanceOf(from), quota.BalanceOf(to)
	fromNext := quota.Balance{Limit: fromNow.Limit - d.Amount, Usage: fromNow.Usage}
	fromNext.Free = fromNext.Limit - fromNext.Usage
	receivable := quota.CanReceive(to, d.Amount)
	toNext := quota.Balance{Limit: math.MaxInt64, Usage: toNow.Usage}
	if receivable {
		toNext.Limit = toNow.Limit + d.Amount
	}
	toNext.Free = toNext.Limit - toNext.Usage

	snap := transfer.SnapshotOf(from, to)
	sim := &transfer.Simulation{
		ID:    id.NewTransferID(),
		Draft: d,
		From: transfer.Side{
			ProductID: d.FromProductID,
			Current:   fromNow,
			Projected: fromNext,
			Revision:  snap.From,
		},
		To: transfer.Side{
			ProductID: d.ToProductID,
			Current:   toNow,
			Projected: toNext,
			Revision:  snap.To,
		},
		Snapshot:    snap,
		Token:       snap.Token(),
		Feasible:    fromNext.Limit >= 0 && receivable,
		SimulatedAt: e.now(),
	}

	e.logger.Debug("transfer simulated",
		"transfer_id", sim.ID.String(),
		"draft", d.String(),
		"feasible", sim.Feasible,
		"snapshot", sim.Token,
	)
	e.plugins.EmitTransferSimulated(ctx, sim)

	return sim, nil
}

// CommitToken is CommitTransfer with the snapshot in its wire form.
func (e *Engine) CommitToken(ctx context.Context, d transfer.Draft, token string) (*transfer.Result, error) {
	snap, err := transfer.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return e.CommitTransfer(ctx, d, snap)
}

// CommitTransfer applies d if both records are still at the revisions in
// expected. It returns ErrConflict when either record changed (including a
// destination that appeared or vanished) and ErrInsufficientLimit when the
// source limit is below the amount. ErrLimitOverflow rejects a destination
// whose limit cannot grow by the amount within int64. Both records are
// written atomically or not at all.
func (e *Engine) CommitTransfer(ctx context.Context, d transfer.Draft, expected transfer.Snapshot) (*transfer.Result, error) {
	if err := e.validateDraft(ctx, d); err != nil {
		return nil, err
	}

	transferID := id.NewTransferID()

	for attempt := 1; attempt <= e.commitAttempts; attempt++ {
		from, to, err := e.readPair(ctx, d)
		if err != nil {
			return nil, err
		}

		if !expected.Matches(from, to) {
			current := transfer.SnapshotOf(from, to)
			return nil, e.reject(ctx, d, fmt.Errorf("%w: expected %s, found %s",
				ErrConflict, expected.Token(), current.Token()))
		}
		if from == nil || from.Limit < d.Amount {
			return nil, e.reject(ctx, d, fmt.Errorf("%w: limit %d, amount %d",
				ErrInsufficientLimit, quota.BalanceOf(from).Limit, d.Amount))
		}
		if !quota.CanReceive(to, d.Amount) {
			return nil, e.reject(ctx, d, fmt.Errorf("%w: limit %d, amount %d",
				ErrLimitOverflow, to.Limit, d.Amount))
		}

		move := &quota.Move{
			ResourceID:    d.ResourceID,
			FromProductID: d.FromProductID,
			ToProductID:   d.ToProductID,
			Amount:        d.Amount,
			FromRevision:  from.Revision,
			ToRevision:    quota.RevisionOf(to),
			NewID:         id.NewQuotaID(),
			At:            e.now(),
		}

		err = e.store.ApplyMove(ctx, move)
		if errors.Is(err, ErrRevisionMismatch) {
			e.logger.Debug("transfer lost compare-and-swap",
				"transfer_id", transferID.String(),
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, storeErr("apply move", err)
		}

		res := appliedResult(transferID, d, from, to, move, attempt)
		e.logger.Info("transfer committed",
			"transfer_id", transferID.String(),
			"draft", d.String(),
			"attempts", attempt,
		)
		e.plugins.EmitTransferCommitted(ctx, res)

		if res.From.Balance.Free < 0 {
			after := *from
			after.Limit = res.From.Balance.Limit
			after.Revision = res.From.Revision
			after.UpdatedAt = move.At
			e.plugins.EmitOverQuota(ctx, &after)
		}
		return res, nil
	}

	return nil, e.reject(ctx, d, fmt.Errorf("%w: gave up after %d attempts", ErrConflict, e.commitAttempts))
}

func appliedResult(transferID id.TransferID, d transfer.Draft, from, to *quota.Quota, m *quota.Move, attempts int) *transfer.Result {
	fromAfter := quota.Balance{Limit: from.Limit - d.Amount, Usage: from.Usage}
	fromAfter.Free = fromAfter.Limit - fromAfter.Usage

	res := &transfer.Result{
		ID:    transferID,
		Draft: d,
		From: transfer.Applied{
			ProductID: d.FromProductID,
			Balance:   fromAfter,
			Revision:  from.Revision + 1,
		},
		Attempts:    attempts,
		CommittedAt: m.At,
	}

	if to == nil {
		res.To = transfer.Applied{
			ProductID: d.ToProductID,
			Balance:   quota.Balance{Limit: d.Amount, Free: d.Amount},
			Revision:  1,
			Created:   true,
		}
		return res
	}

	toAfter := quota.Balance{Limit: to.Limit + d.Amount, Usage: to.Usage}
	toAfter.Free = toAfter.Limit - toAfter.Usage
	res.To = transfer.Applied{
		ProductID: d.ToProductID,
		Balance:   toAfter,
		Revision:  to.Revision + 1,
	}
	return res
}

func (e *Engine) reject(ctx context.Context, d transfer.Draft, reason error) error {
	e.logger.Info("transfer rejected",
		"draft", d.String(),
		"reason", reason,
	)
	e.plugins.EmitTransferRejected(ctx, d, reason)
	return reason
}

func (e *Engine) validateDraft(ctx context.Context, d transfer.Draft) error {
	if d.Amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, d.Amount)
	}
	if d.FromProductID == d.ToProductID {
		return ErrSameProduct
	}
	if err := e.checkProduct(ctx, d.FromProductID); err != nil {
		return err
	}
	if err := e.checkProduct(ctx, d.ToProductID); err != nil {
		return err
	}
	_, err := e.lookupResource(ctx, d.ResourceID)
	return err
}

// readPair reads both records of d with a single store query.
func (e *Engine) readPair(ctx context.Context, d transfer.Draft) (from, to *quota.Quota, err error) {
	quotas, err := e.store.ListQuotas(ctx, quota.ListOpts{
		ProductIDs: []string{d.FromProductID, d.ToProductID},
		ResourceID: d.ResourceID,
	})
	if err != nil {
		return nil, nil, storeErr("read transfer pair", err)
	}

	for _, q := range quotas {
		switch q.ProductID {
		case d.FromProductID:
			from = q
		case d.ToProductID:
			to = q
		}
	}
	return from, to, nil
}
