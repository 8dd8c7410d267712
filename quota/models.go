// Package quota holds the per-(product, resource) allocation records the
// engine maintains, and the storage port that persists them.
package quota

import (
	"math"
	"strconv"
	"time"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/types"
)

// Quota is the allocation of one resource to one product. Limit is written
// by uploads and transfers; Usage is written by the provisioning system and
// only read here. Revision increases by one on every limit change.
type Quota struct {
	types.Entity

	ID         id.QuotaID `json:"id"`
	ProductID  string     `json:"product_id"`
	ResourceID string     `json:"resource_id"`
	Limit      int64      `json:"limit"`
	Usage      int64      `json:"usage"`
	Revision   int64      `json:"revision"`
}

// Free is Limit minus Usage. It is negative when a product is over quota.
func (q *Quota) Free() int64 {
	return q.Limit - q.Usage
}

// Over reports whether usage exceeds the limit.
func (q *Quota) Over() bool {
	return q.Free() < 0
}

func (q *Quota) Key() Key {
	return Key{ProductID: q.ProductID, ResourceID: q.ResourceID}
}

func (q *Quota) Balance() Balance {
	return Balance{Limit: q.Limit, Usage: q.Usage, Free: q.Free()}
}

// Key addresses a quota record.
type Key struct {
	ProductID  string `json:"product_id"`
	ResourceID string `json:"resource_id"`
}

// Balance is a point-in-time view of a record's quantities.
type Balance struct {
	Limit int64 `json:"limit"`
	Usage int64 `json:"usage"`
	Free  int64 `json:"free"`
}

// BalanceOf returns the balance of q, treating a missing record as all zero.
func BalanceOf(q *Quota) Balance {
	if q == nil {
		return Balance{}
	}
	return q.Balance()
}

// CanReceive reports whether amount can be added to the limit of q without
// leaving the int64 range. A missing record starts from zero.
func CanReceive(q *Quota, amount int64) bool {
	return q == nil || q.Limit <= math.MaxInt64-amount
}

// Revision is a presence-aware revision: a record that does not exist yet
// is distinct from one at revision zero.
type Revision struct {
	Present bool  `json:"present"`
	Value   int64 `json:"value"`
}

// Absent is the revision of a record that does not exist.
var Absent = Revision{}

// At returns the revision of an existing record.
func At(v int64) Revision {
	return Revision{Present: true, Value: v}
}

// RevisionOf returns the revision of q, or Absent for nil.
func RevisionOf(q *Quota) Revision {
	if q == nil {
		return Absent
	}
	return At(q.Revision)
}

// String renders the revision as its number, or "-" when absent.
func (r Revision) String() string {
	if !r.Present {
		return "-"
	}
	return strconv.FormatInt(r.Value, 10)
}

// Allocation is one (resource, limit) pair of an upload batch.
type Allocation struct {
	ResourceID string `json:"resource_id"`
	Limit      int64  `json:"limit"`
}

// Move is a validated limit transfer handed to the store. The store applies
// it only if the source is at FromRevision and the destination matches
// ToRevision, in which case the source limit drops by Amount and the
// destination limit rises by Amount (creating it with NewID when absent).
type Move struct {
	ResourceID    string
	FromProductID string
	ToProductID   string
	Amount        int64
	FromRevision  int64
	ToRevision    Revision
	NewID         id.QuotaID
	At            time.Time
}

// ProductOrder returns the two product IDs in the order writes lock them.
func (m *Move) ProductOrder() (first, second string) {
	if m.FromProductID < m.ToProductID {
		return m.FromProductID, m.ToProductID
	}
	return m.ToProductID, m.FromProductID
}

// ListOpts filters ListQuotas. An empty ProductIDs selects every product.
type ListOpts struct {
	ProductIDs []string
	ResourceID string
}
