package capacity_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/usage"
)

func TestUsageReport(t *testing.T) {
	e, s := newTestEngine(t, capacity.WithReportPageSize(2))
	ctx := context.Background()
	seedQuota(t, e, s, "P", "cpu", 1000, 100)
	seedQuota(t, e, s, "Q", "cpu", 500, 0)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		if err := s.SetUsage(ctx, "P", "cpu", int64(100*(i+1))); err != nil {
			t.Fatal(err)
		}
		if _, err := e.CaptureSamples(ctx, day.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	// A resource sampled but no longer in the catalog still gets a series.
	if err := s.IngestSamples(ctx, []*usage.Sample{{ProductID: "P", ResourceID: "legacy", Timestamp: day, Usage: 1, Limit: 2, Free: 1}}); err != nil {
		t.Fatal(err)
	}

	report, err := e.GetUsageReport(ctx, "P", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	if len(report) != 3 {
		t.Fatalf("got %d series, want 3", len(report))
	}
	ids := []string{report[0].ResourceID, report[1].ResourceID, report[2].ResourceID}
	if !reflect.DeepEqual(ids, []string{"cpu", "legacy", "memory"}) {
		t.Errorf("series order = %v", ids)
	}

	cpu := report[0]
	if len(cpu.Points) != 3 {
		t.Fatalf("cpu has %d points, want 3", len(cpu.Points))
	}
	for i, p := range cpu.Points {
		wantUsage := int64(100 * (i + 1))
		if p.Usage != wantUsage || p.Limit != 1000 || p.Free != 1000-wantUsage {
			t.Errorf("point %d = %+v", i, p)
		}
		if i > 0 && !p.Timestamp.After(cpu.Points[i-1].Timestamp) {
			t.Errorf("points out of order at %d", i)
		}
	}
	if report[2].ResourceID != "memory" || len(report[2].Points) != 0 {
		t.Errorf("memory series = %+v, want empty", report[2])
	}

	again, err := e.GetUsageReport(ctx, "P", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report, again) {
		t.Error("identical report requests returned different results")
	}
}

func TestUsageReportRange(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	seedQuota(t, e, s, "P", "cpu", 1000, 100)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := e.CaptureSamples(ctx, day); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		points int
		err    error
	}{
		{"inverted", day.Add(time.Hour), day, 0, capacity.ErrInvalidRange},
		{"instant", day, day, 1, nil},
		{"before", day.Add(-48 * time.Hour), day.Add(-24 * time.Hour), 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.GetUsageReport(ctx, "P", tt.start, tt.end)
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}
			if err != nil {
				return
			}
			if got := len(report[0].Points); got != tt.points {
				t.Errorf("cpu points = %d, want %d", got, tt.points)
			}
		})
	}
}

type flushCounter struct {
	mu    sync.Mutex
	count int
}

func (*flushCounter) Name() string { return "flush-counter" }

func (f *flushCounter) OnSamplesFlushed(_ context.Context, count int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count += count
	return nil
}

func TestRecordedSamplesFlushOnStop(t *testing.T) {
	counter := &flushCounter{}
	e, s := newTestEngine(t,
		capacity.WithPlugin(counter),
		capacity.WithSampleConfig(100, time.Hour),
	)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		err := e.RecordSample(ctx, &usage.Sample{
			ProductID:  "P",
			ResourceID: "cpu",
			Timestamp:  at.Add(time.Duration(i) * time.Minute),
			Usage:      int64(i),
			Limit:      10,
			Free:       10 - int64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}

	samples, err := s.QuerySamples(ctx, "P", usage.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 5 {
		t.Errorf("stored %d samples, want 5", len(samples))
	}
	for _, smp := range samples {
		if smp.ID.IsNil() {
			t.Error("sample stored without an ID")
		}
	}

	counter.mu.Lock()
	defer counter.mu.Unlock()
	if counter.count != 5 {
		t.Errorf("flush hook saw %d samples, want 5", counter.count)
	}
}

func TestRecordSampleBufferFull(t *testing.T) {
	e, _ := newTestEngine(t, capacity.WithSampleBufferSize(1))
	ctx := context.Background()

	if err := e.RecordSample(ctx, &usage.Sample{ProductID: "P", ResourceID: "cpu"}); err != nil {
		t.Fatal(err)
	}
	err := e.RecordSample(ctx, &usage.Sample{ProductID: "P", ResourceID: "cpu"})
	if !errors.Is(err, capacity.ErrSampleBufferFull) {
		t.Fatalf("error = %v, want ErrSampleBufferFull", err)
	}
	if !capacity.IsRetryable(err) {
		t.Error("full buffer should be retryable")
	}

	if err := e.RecordSample(ctx, &usage.Sample{ProductID: "P"}); !errors.Is(err, capacity.ErrInvalidInput) {
		t.Errorf("sample without resource error = %v", err)
	}
}

func TestCaptureWorker(t *testing.T) {
	e, s := newTestEngine(t, capacity.WithCaptureInterval(10*time.Millisecond))
	ctx := context.Background()
	seedQuota(t, e, s, "P", "cpu", 1000, 100)

	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		samples, err := s.QuerySamples(ctx, "P", usage.QueryOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(samples) > 0 {
			if samples[0].Free != 900 {
				t.Errorf("captured free = %d, want 900", samples[0].Free)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture worker wrote no samples")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
}
