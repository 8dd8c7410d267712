package usage

import "context"

type Store interface {
	IngestSamples(ctx context.Context, samples []*Sample) error

	// QuerySamples returns samples ordered by timestamp, then resource, then ID.
	QuerySamples(ctx context.Context, productID string, opts QueryOpts) ([]*Sample, error)
}
