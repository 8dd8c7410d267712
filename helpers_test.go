package capacity_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store"
	"github.com/xraph/capacity/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine over a fresh memory store whose catalog
// holds "cpu" (CORES) and "memory" (BYTES).
func newTestEngine(t *testing.T, opts ...capacity.Option) (*capacity.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	return newEngineOn(t, s, opts...), s
}

func newEngineOn(t *testing.T, s store.Store, opts ...capacity.Option) *capacity.Engine {
	t.Helper()
	opts = append([]capacity.Option{capacity.WithLogger(quietLogger())}, opts...)
	e := capacity.New(s, opts...)

	err := e.SeedResources(context.Background(),
		&resource.Resource{ID: "cpu", Name: "vCPU", Unit: resource.UnitCores},
		&resource.Resource{ID: "memory", Name: "Memory", Unit: resource.UnitBytes},
	)
	if err != nil {
		t.Fatalf("seed resources: %v", err)
	}
	return e
}

// seedQuota uploads a limit and sets usage the way the provisioning system would.
func seedQuota(t *testing.T, e *capacity.Engine, s quota.Store, productID, resourceID string, limit, used int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.UploadQuotas(ctx, productID, []quota.Allocation{{ResourceID: resourceID, Limit: limit}}); err != nil {
		t.Fatalf("upload %s/%s: %v", productID, resourceID, err)
	}
	if err := s.SetUsage(ctx, productID, resourceID, used); err != nil {
		t.Fatalf("set usage %s/%s: %v", productID, resourceID, err)
	}
}

// mustQuota returns the record for (productID, resourceID) or nil.
func mustQuota(t *testing.T, e *capacity.Engine, productID, resourceID string) *quota.Quota {
	t.Helper()
	all, err := e.ListQuotas(context.Background(), []string{productID})
	if err != nil {
		t.Fatalf("list quotas: %v", err)
	}
	for _, q := range all[productID] {
		if q.ResourceID == resourceID {
			return q
		}
	}
	return nil
}
