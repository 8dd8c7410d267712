package memory_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/store/memory"
	"github.com/xraph/capacity/usage"
)

func upload(t *testing.T, s *memory.Store, productID, resourceID string, limit int64) {
	t.Helper()
	err := s.UploadQuotas(context.Background(), []*quota.Quota{{
		ID:         id.NewQuotaID(),
		ProductID:  productID,
		ResourceID: resourceID,
		Limit:      limit,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, s *memory.Store, productID string) *quota.Quota {
	t.Helper()
	qs, err := s.ListQuotas(context.Background(), quota.ListOpts{ProductIDs: []string{productID}, ResourceID: "cpu"})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) == 0 {
		return nil
	}
	return qs[0]
}

func TestUploadRevisions(t *testing.T) {
	s := memory.New()
	upload(t, s, "p", "cpu", 10)
	upload(t, s, "p", "cpu", 10)
	if got := get(t, s, "p").Revision; got != 0 {
		t.Fatalf("same limit should not bump revision, got %d", got)
	}
	upload(t, s, "p", "cpu", 20)
	q := get(t, s, "p")
	if q.Revision != 1 || q.Limit != 20 {
		t.Fatalf("got limit %d revision %d, want 20/1", q.Limit, q.Revision)
	}
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name    string
		move    quota.Move
		wantErr bool
	}{
		{
			name: "into new destination",
			move: quota.Move{FromProductID: "a", ToProductID: "new", FromRevision: 0, ToRevision: quota.Absent},
		},
		{
			name: "into existing destination",
			move: quota.Move{FromProductID: "a", ToProductID: "b", FromRevision: 0, ToRevision: quota.At(0)},
		},
		{
			name:    "stale source",
			move:    quota.Move{FromProductID: "a", ToProductID: "b", FromRevision: 3, ToRevision: quota.At(0)},
			wantErr: true,
		},
		{
			name:    "destination expected absent",
			move:    quota.Move{FromProductID: "a", ToProductID: "b", FromRevision: 0, ToRevision: quota.Absent},
			wantErr: true,
		},
		{
			name:    "missing source",
			move:    quota.Move{FromProductID: "ghost", ToProductID: "b", FromRevision: 0, ToRevision: quota.At(0)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			upload(t, s, "a", "cpu", 100)
			upload(t, s, "b", "cpu", 50)

			m := tt.move
			m.ResourceID = "cpu"
			m.Amount = 30
			m.NewID = id.NewQuotaID()
			m.At = time.Now().UTC()

			err := s.ApplyMove(context.Background(), &m)
			if tt.wantErr {
				if !errors.Is(err, capacity.ErrRevisionMismatch) {
					t.Fatalf("expected ErrRevisionMismatch, got %v", err)
				}
				if a := get(t, s, "a"); a.Limit != 100 || a.Revision != 0 {
					t.Fatalf("source changed on a rejected move: %+v", a)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			from, to := get(t, s, m.FromProductID), get(t, s, m.ToProductID)
			if from.Limit != 70 || from.Revision != 1 {
				t.Errorf("source = %d@%d, want 70@1", from.Limit, from.Revision)
			}
			wantTo := int64(30)
			if m.ToRevision.Present {
				wantTo = 80
			}
			if to.Limit != wantTo || to.Revision != 1 {
				t.Errorf("destination = %d@%d, want %d@1", to.Limit, to.Revision, wantTo)
			}
		})
	}
}

func TestApplyMoveInsufficientLimit(t *testing.T) {
	s := memory.New()
	upload(t, s, "a", "cpu", 10)

	err := s.ApplyMove(context.Background(), &quota.Move{
		ResourceID: "cpu", FromProductID: "a", ToProductID: "b",
		Amount: 11, ToRevision: quota.Absent, NewID: id.NewQuotaID(),
	})
	if !errors.Is(err, capacity.ErrRevisionMismatch) {
		t.Fatalf("expected ErrRevisionMismatch, got %v", err)
	}
	if get(t, s, "b") != nil {
		t.Fatal("destination must not be created")
	}
}

func TestApplyMoveDestinationOverflow(t *testing.T) {
	s := memory.New()
	upload(t, s, "a", "cpu", 100)
	upload(t, s, "b", "cpu", math.MaxInt64-10)

	err := s.ApplyMove(context.Background(), &quota.Move{
		ResourceID: "cpu", FromProductID: "a", ToProductID: "b",
		Amount: 11, ToRevision: quota.At(0), NewID: id.NewQuotaID(),
	})
	if !errors.Is(err, capacity.ErrLimitOverflow) {
		t.Fatalf("expected ErrLimitOverflow, got %v", err)
	}
	if a := get(t, s, "a"); a.Limit != 100 || a.Revision != 0 {
		t.Fatalf("source changed on a rejected move: %+v", a)
	}
	if b := get(t, s, "b"); b.Limit != math.MaxInt64-10 || b.Revision != 0 {
		t.Fatalf("destination changed on a rejected move: %+v", b)
	}
}

func TestSetUsageMissing(t *testing.T) {
	s := memory.New()
	if err := s.SetUsage(context.Background(), "p", "cpu", 1); !errors.Is(err, capacity.ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound, got %v", err)
	}
}

func TestQuerySamplesOrderAndPaging(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var samples []*usage.Sample
	for i := 4; i >= 0; i-- {
		samples = append(samples, &usage.Sample{
			ID:         id.NewSampleID(),
			ProductID:  "p",
			ResourceID: "cpu",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Usage:      int64(i),
		})
	}
	if err := s.IngestSamples(ctx, samples); err != nil {
		t.Fatal(err)
	}

	page, err := s.QuerySamples(ctx, "p", usage.QueryOpts{
		Start:  base.Add(time.Hour),
		End:    base.Add(4 * time.Hour),
		Limit:  2,
		Offset: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Usage != 2 || page[1].Usage != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
}
