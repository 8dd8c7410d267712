package quota

import "context"

type Store interface {
	// ListQuotas returns matching records ordered by product then resource.
	ListQuotas(ctx context.Context, opts ListOpts) ([]*Quota, error)

	// UploadQuotas upserts the whole batch atomically. Existing records keep
	// their ID and usage; their revision moves only if the limit changed.
	UploadQuotas(ctx context.Context, quotas []*Quota) error

	// ApplyMove performs the compare-and-swap of both records of m atomically.
	// A revision or presence mismatch yields capacity.ErrRevisionMismatch and
	// leaves both records untouched.
	ApplyMove(ctx context.Context, m *Move) error

	// SetUsage records the provisioned usage of an existing record. It is the
	// write path of the provisioning system and is never called by the engine.
	SetUsage(ctx context.Context, productID, resourceID string, usage int64) error
}
