// Package memory is an in-process Store for tests and single-node
// deployments. A single mutex serializes every write, so a transfer updates
// both of its records inside one critical section.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store"
	"github.com/xraph/capacity/types"
	"github.com/xraph/capacity/usage"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	resources map[string]*resource.Resource
	quotas    map[quota.Key]*quota.Quota
	samples   []*usage.Sample
}

func New() *Store {
	return &Store{
		resources: make(map[string]*resource.Resource),
		quotas:    make(map[quota.Key]*quota.Quota),
	}
}

// Resource Store implementation
func (s *Store) ListResources(_ context.Context) ([]*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*resource.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetResource(_ context.Context, resourceID string) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[resourceID]
	if !ok {
		return nil, capacity.ErrResourceNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) PutResource(_ context.Context, r *resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	if existing, ok := s.resources[r.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.resources[r.ID] = &cp
	return nil
}

// Quota Store implementation
func (s *Store) ListQuotas(_ context.Context, opts quota.ListOpts) ([]*quota.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var products map[string]struct{}
	if len(opts.ProductIDs) > 0 {
		products = make(map[string]struct{}, len(opts.ProductIDs))
		for _, p := range opts.ProductIDs {
			products[p] = struct{}{}
		}
	}

	var result []*quota.Quota
	for key, q := range s.quotas {
		if products != nil {
			if _, ok := products[key.ProductID]; !ok {
				continue
			}
		}
		if opts.ResourceID != "" && key.ResourceID != opts.ResourceID {
			continue
		}
		cp := *q
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductID != result[j].ProductID {
			return result[i].ProductID < result[j].ProductID
		}
		return result[i].ResourceID < result[j].ResourceID
	})
	return result, nil
}

func (s *Store) UploadQuotas(_ context.Context, quotas []*quota.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotas {
		existing, ok := s.quotas[q.Key()]
		if !ok {
			cp := *q
			s.quotas[q.Key()] = &cp
			continue
		}
		if existing.Limit != q.Limit {
			existing.Limit = q.Limit
			existing.Revision++
			existing.UpdatedAt = q.UpdatedAt
		}
	}
	return nil
}

func (s *Store) ApplyMove(_ context.Context, m *quota.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := quota.Key{ProductID: m.FromProductID, ResourceID: m.ResourceID}
	toKey := quota.Key{ProductID: m.ToProductID, ResourceID: m.ResourceID}

	from, ok := s.quotas[fromKey]
	if !ok || from.Revision != m.FromRevision || from.Limit < m.Amount {
		return capacity.ErrRevisionMismatch
	}
	to := s.quotas[toKey]
	if quota.RevisionOf(to) != m.ToRevision {
		return capacity.ErrRevisionMismatch
	}
	if !quota.CanReceive(to, m.Amount) {
		return capacity.ErrLimitOverflow
	}

	from.Limit -= m.Amount
	from.Revision++
	from.UpdatedAt = m.At

	if to == nil {
		s.quotas[toKey] = &quota.Quota{
			ID:         m.NewID,
			ProductID:  m.ToProductID,
			ResourceID: m.ResourceID,
			Limit:      m.Amount,
			Revision:   1,
			Entity:     types.Entity{CreatedAt: m.At, UpdatedAt: m.At},
		}
		return nil
	}
	to.Limit += m.Amount
	to.Revision++
	to.UpdatedAt = m.At
	return nil
}

func (s *Store) SetUsage(_ context.Context, productID, resourceID string, used int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotas[quota.Key{ProductID: productID, ResourceID: resourceID}]
	if !ok {
		return capacity.ErrQuotaNotFound
	}
	q.Usage = used
	return nil
}

// Usage Store implementation
func (s *Store) IngestSamples(_ context.Context, samples []*usage.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, smp := range samples {
		cp := *smp
		s.samples = append(s.samples, &cp)
	}
	return nil
}

func (s *Store) QuerySamples(_ context.Context, productID string, opts usage.QueryOpts) ([]*usage.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*usage.Sample
	for _, smp := range s.samples {
		if smp.ProductID != productID {
			continue
		}
		if opts.ResourceID != "" && smp.ResourceID != opts.ResourceID {
			continue
		}
		if !opts.Start.IsZero() && smp.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && smp.Timestamp.After(opts.End) {
			continue
		}
		cp := *smp
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.ID.String() < b.ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
