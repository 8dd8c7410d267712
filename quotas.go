package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/types"
)

// ListQuotas returns the quota records of the given products in one batched
// read, keyed by product ID. Products without records are absent from the
// map; each product's records are ordered by resource ID.
func (e *Engine) ListQuotas(ctx context.Context, productIDs []string) (map[string][]*quota.Quota, error) {
	ids := uniqueNonEmpty(productIDs)
	result := make(map[string][]*quota.Quota, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	quotas, err := e.store.ListQuotas(ctx, quota.ListOpts{ProductIDs: ids})
	if err != nil {
		return nil, storeErr("list quotas", err)
	}
	for _, q := range quotas {
		result[q.ProductID] = append(result[q.ProductID], q)
	}
	return result, nil
}

// UploadQuotas sets the limits of productID for every listed resource.
// The batch is validated as a whole: if any item is rejected nothing is
// written, and the returned *MultiError carries one *ItemError per rejected
// item. Existing records keep their usage; new records start at usage 0 and
// revision 0. Uploads overwrite limits without a snapshot check. Re-uploading
// an unchanged limit keeps the revision, so it does not invalidate snapshots.
func (e *Engine) UploadQuotas(ctx context.Context, productID string, items []quota.Allocation) ([]*quota.Quota, error) {
	if err := e.checkProduct(ctx, productID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "quotas", Message: "at least one quota is required"}
	}

	byID, _, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}

	errs := &MultiError{}
	seen := make(map[string]int, len(items))
	for i, item := range items {
		switch {
		case item.Limit <= 0:
			errs.Add(&ItemError{Index: i, ResourceID: item.ResourceID, Err: ErrInvalidLimit})
		case byID[item.ResourceID] == nil:
			if _, err := e.fetchResource(ctx, item.ResourceID); err != nil {
				if !errors.Is(err, ErrUnknownResource) {
					return nil, err
				}
				errs.Add(&ItemError{Index: i, ResourceID: item.ResourceID, Err: ErrUnknownResource})
			}
		}
		if first, dup := seen[item.ResourceID]; dup {
			errs.Add(&ItemError{
				Index:      i,
				ResourceID: item.ResourceID,
				Err:        fmt.Errorf("%w: first listed at %d", ErrDuplicateResource, first),
			})
			continue
		}
		seen[item.ResourceID] = i
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	now := e.now()
	batch := make([]*quota.Quota, len(items))
	for i, item := range items {
		batch[i] = &quota.Quota{
			Entity:     types.Entity{CreatedAt: now, UpdatedAt: now},
			ID:         id.NewQuotaID(),
			ProductID:  productID,
			ResourceID: item.ResourceID,
			Limit:      item.Limit,
		}
	}

	if err := e.store.UploadQuotas(ctx, batch); err != nil {
		return nil, storeErr("upload quotas", err)
	}

	current, err := e.store.ListQuotas(ctx, quota.ListOpts{ProductIDs: []string{productID}})
	if err != nil {
		return nil, storeErr("list quotas", err)
	}
	uploaded := make([]*quota.Quota, 0, len(items))
	for _, q := range current {
		if _, ok := seen[q.ResourceID]; ok {
			uploaded = append(uploaded, q)
		}
	}

	e.logger.Info("quotas uploaded",
		"product_id", productID,
		"count", len(uploaded),
	)
	e.plugins.EmitQuotasUploaded(ctx, productID, uploaded)
	for _, q := range uploaded {
		if q.Over() {
			e.plugins.EmitOverQuota(ctx, q)
		}
	}

	return uploaded, nil
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
