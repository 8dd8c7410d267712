package capacity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/usage"
)

// GetUsageReport returns the usage history of productID between start and
// end, both inclusive: one series per catalog resource (possibly empty), plus
// one for any sampled resource that has since left the catalog. Series are
// ordered by resource ID and points by timestamp.
func (e *Engine) GetUsageReport(ctx context.Context, productID string, start, end time.Time) ([]*usage.Series, error) {
	if err := e.checkProduct(ctx, productID); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	_, catalog, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}

	byResource := make(map[string]*usage.Series, len(catalog))
	for _, r := range catalog {
		byResource[r.ID] = &usage.Series{ResourceID: r.ID, Unit: r.Unit, Points: []usage.Point{}}
	}

	for offset := 0; ; offset += e.reportPageSize {
		page, err := e.store.QuerySamples(ctx, productID, usage.QueryOpts{
			Start:  start,
			End:    end,
			Limit:  e.reportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, storeErr("query samples", err)
		}

		for _, s := range page {
			series, ok := byResource[s.ResourceID]
			if !ok {
				series = &usage.Series{ResourceID: s.ResourceID, Points: []usage.Point{}}
				byResource[s.ResourceID] = series
			}
			series.Points = append(series.Points, usage.Point{
				Timestamp: s.Timestamp,
				Usage:     s.Usage,
				Limit:     s.Limit,
				Free:      s.Free,
			})
		}

		if len(page) < e.reportPageSize {
			break
		}
	}

	report := make([]*usage.Series, 0, len(byResource))
	for _, s := range byResource {
		report = append(report, s)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].ResourceID < report[j].ResourceID })

	return report, nil
}

// RecordSample queues a usage sample for the flush worker (non-blocking).
func (e *Engine) RecordSample(_ context.Context, s *usage.Sample) error {
	if s.ProductID == "" || s.ResourceID == "" {
		return &ValidationError{Field: "sample", Message: "product_id and resource_id are required"}
	}
	if s.ID.IsNil() {
		s.ID = id.NewSampleID()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = e.now()
	}

	select {
	case e.sampleBuffer <- s:
		return nil
	default:
		return ErrSampleBufferFull
	}
}

// CaptureSamples records the current state of every quota record as a
// sample stamped at, writing directly to the store. It returns the number
// of samples written.
func (e *Engine) CaptureSamples(ctx context.Context, at time.Time) (int, error) {
	quotas, err := e.store.ListQuotas(ctx, quota.ListOpts{})
	if err != nil {
		return 0, storeErr("list quotas", err)
	}
	if len(quotas) == 0 {
		return 0, nil
	}

	samples := make([]*usage.Sample, len(quotas))
	for i, q := range quotas {
		samples[i] = &usage.Sample{
			ID:         id.NewSampleID(),
			ProductID:  q.ProductID,
			ResourceID: q.ResourceID,
			Timestamp:  at,
			Usage:      q.Usage,
			Limit:      q.Limit,
			Free:       q.Free(),
		}
	}

	start := time.Now()
	if err := e.store.IngestSamples(ctx, samples); err != nil {
		return 0, storeErr("ingest samples", err)
	}
	e.plugins.EmitSamplesFlushed(ctx, len(samples), time.Since(start))

	return len(samples), nil
}

// sampleFlushWorker flushes buffered samples to the store.
func (e *Engine) sampleFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]*usage.Sample, 0, e.sampleBatchSize)
	ticker := time.NewTicker(e.sampleFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
		drain:
			for {
				select {
				case s := <-e.sampleBuffer:
					batch = append(batch, s)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				e.flushSampleBatch(ctx, batch)
			}
			return

		case s := <-e.sampleBuffer:
			batch = append(batch, s)
			if len(batch) >= e.sampleBatchSize {
				e.flushSampleBatch(ctx, batch)
				batch = make([]*usage.Sample, 0, e.sampleBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushSampleBatch(ctx, batch)
				batch = make([]*usage.Sample, 0, e.sampleBatchSize)
			}
		}
	}
}

func (e *Engine) flushSampleBatch(ctx context.Context, batch []*usage.Sample) {
	start := time.Now()

	if err := e.store.IngestSamples(ctx, batch); err != nil {
		e.logger.Error("failed to flush sample batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	e.plugins.EmitSamplesFlushed(ctx, len(batch), elapsed)

	e.logger.Debug("flushed sample batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// captureWorker runs CaptureSamples every captureInterval.
func (e *Engine) captureWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.captureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			n, err := e.CaptureSamples(ctx, e.now())
			if err != nil {
				e.logger.Error("usage capture failed", "error", err)
				continue
			}
			e.logger.Debug("usage captured", "samples", n)
		}
	}
}
