package resource

import "context"

type Store interface {
	ListResources(ctx context.Context) ([]*Resource, error)
	GetResource(ctx context.Context, resourceID string) (*Resource, error)
	PutResource(ctx context.Context, r *Resource) error
}
