package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/capacity/resource"
)

// ListResources returns the resource catalog ordered by ID.
func (e *Engine) ListResources(ctx context.Context) ([]*resource.Resource, error) {
	_, list, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*resource.Resource, len(list))
	for i, r := range list {
		cp := *r
		result[i] = &cp
	}
	return result, nil
}

// SeedResources writes catalog entries. The catalog is owned by the
// deployment, so this is meant for bootstrapping, not for request handling.
func (e *Engine) SeedResources(ctx context.Context, resources ...*resource.Resource) error {
	for _, r := range resources {
		if r.ID == "" {
			return &ValidationError{Field: "id", Message: "resource id is required"}
		}
		if r.Name == "" {
			return &ValidationError{Field: "name", Message: fmt.Sprintf("resource %s has no name", r.ID)}
		}
		if !r.Unit.Valid() {
			return &ValidationError{Field: "unit", Message: fmt.Sprintf("resource %s has unknown unit %q", r.ID, r.Unit)}
		}
	}

	for _, r := range resources {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = e.now()
		}
		r.UpdatedAt = e.now()
		if err := e.store.PutResource(ctx, r); err != nil {
			return storeErr("put resource", err)
		}
	}

	e.invalidateCatalog()
	e.logger.Info("resource catalog seeded", "count", len(resources))
	return nil
}

// catalog returns the cached catalog, reloading it once the TTL has passed.
// A reload that raced with an invalidation is returned but not cached.
func (e *Engine) catalog(ctx context.Context) (map[string]*resource.Resource, []*resource.Resource, error) {
	e.catalogMu.RLock()
	if e.catalogByID != nil && e.catalogCacheTTL > 0 && e.now().Sub(e.catalogLoadedAt) < e.catalogCacheTTL {
		byID, list := e.catalogByID, e.catalogList
		e.catalogMu.RUnlock()
		return byID, list, nil
	}
	gen := e.catalogGen
	e.catalogMu.RUnlock()

	list, err := e.store.ListResources(ctx)
	if err != nil {
		return nil, nil, storeErr("list resources", err)
	}

	byID := make(map[string]*resource.Resource, len(list))
	for _, r := range list {
		byID[r.ID] = r
	}

	e.catalogMu.Lock()
	if e.catalogGen == gen {
		e.catalogByID = byID
		e.catalogList = list
		e.catalogLoadedAt = e.now()
	}
	e.catalogMu.Unlock()

	return byID, list, nil
}

func (e *Engine) invalidateCatalog() {
	e.catalogMu.Lock()
	e.catalogGen++
	e.catalogByID = nil
	e.catalogList = nil
	e.catalogMu.Unlock()
}

// lookupResource resolves resourceID against the catalog, asking the store
// directly when the cached catalog does not have it.
func (e *Engine) lookupResource(ctx context.Context, resourceID string) (*resource.Resource, error) {
	byID, _, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := byID[resourceID]; ok {
		return r, nil
	}
	return e.fetchResource(ctx, resourceID)
}

// fetchResource reads one resource past the cache. Finding it means the
// cached catalog is stale, so the cache is dropped.
func (e *Engine) fetchResource(ctx context.Context, resourceID string) (*resource.Resource, error) {
	r, err := e.store.GetResource(ctx, resourceID)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resourceID)
	}
	if err != nil {
		return nil, storeErr("get resource", err)
	}
	e.invalidateCatalog()
	return r, nil
}
