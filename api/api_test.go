package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/api"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/store/memory"
)

type fixture struct {
	engine *capacity.Engine
	store  *memory.Store
	server http.Handler
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := memory.New()
	e := capacity.New(s, capacity.WithLogger(logger))

	err := e.SeedResources(context.Background(),
		&resource.Resource{ID: "cpu", Name: "vCPU", Unit: resource.UnitCores},
		&resource.Resource{ID: "memory", Name: "Memory", Unit: resource.UnitBytes},
	)
	require.NoError(t, err)

	opts = append([]api.Option{api.WithLogger(logger)}, opts...)
	return &fixture{engine: e, store: s, server: api.New(e, opts...)}
}

func (f *fixture) upload(t *testing.T, productID, resourceID string, limit int64) {
	t.Helper()
	_, err := f.engine.UploadQuotas(context.Background(), productID, []quota.Allocation{{ResourceID: resourceID, Limit: limit}})
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func draft(from, to string, amount int64) map[string]any {
	return map[string]any{
		"from_product_id": from,
		"to_product_id":   to,
		"resource_id":     "cpu",
		"amount":          amount,
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestListResources(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/resources", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resources := decodeBody(t, rec)["resources"].([]any)
	require.Len(t, resources, 2)
	assert.Equal(t, "cpu", resources[0].(map[string]any)["id"])
	assert.Equal(t, "memory", resources[1].(map[string]any)["id"])
}

func TestListQuotas(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "p1", "cpu", 4000)
	f.upload(t, "p2", "memory", 1<<30)

	rec := f.do(t, http.MethodGet, "/quotas?product_id=p1&product_id=p2&product_id=p3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	quotas := decodeBody(t, rec)["quotas"].(map[string]any)
	assert.Len(t, quotas, 2)
	assert.Contains(t, quotas, "p1")
	assert.Contains(t, quotas, "p2")
	assert.NotContains(t, quotas, "p3")
}

func TestListQuotas_MissingProduct(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/quotas", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadQuotas(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/products/p1/quotas", map[string]any{
		"quotas": []map[string]any{
			{"resource_id": "cpu", "limit": 2000},
			{"resource_id": "memory", "limit": 4096},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	quotas := decodeBody(t, rec)["quotas"].([]any)
	assert.Len(t, quotas, 2)
}

func TestUploadQuotas_BatchRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/products/p1/quotas", map[string]any{
		"quotas": []map[string]any{
			{"resource_id": "cpu", "limit": 2000},
			{"resource_id": "gpu", "limit": 1},
			{"resource_id": "memory", "limit": 0},
		},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "gpu", items[0].(map[string]any)["resource_id"])
	assert.Equal(t, "memory", items[1].(map[string]any)["resource_id"])

	// Nothing from the batch was written.
	all, err := f.engine.ListQuotas(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUploadQuotas_EmptyBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/products/p1/quotas", map[string]any{"quotas": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "validation error")
}

func TestSimulateThenCommit(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "p1", "cpu", 4000)

	rec := f.do(t, http.MethodPost, "/transfers/simulate", draft("p1", "p2", 1500))
	require.Equal(t, http.StatusOK, rec.Code)
	sim := decodeBody(t, rec)
	assert.Equal(t, true, sim["feasible"])
	token := sim["snapshot_token"].(string)
	assert.Equal(t, "v1.0.-", token)

	body := draft("p1", "p2", 1500)
	body["snapshot_token"] = token
	rec = f.do(t, http.MethodPost, "/transfers/commit", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.OutcomeCommitted, decodeBody(t, rec)["outcome"])

	// Replaying the same token is stale now.
	rec = f.do(t, http.MethodPost, "/transfers/commit", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.OutcomeConflict, decodeBody(t, rec)["outcome"])
}

func TestCommit_InsufficientLimit(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "p1", "cpu", 1000)

	body := draft("p1", "p2", 5000)
	body["snapshot_token"] = "v1.0.-"
	rec := f.do(t, http.MethodPost, "/transfers/commit", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, api.OutcomeInsufficientLimit, decodeBody(t, rec)["outcome"])
}

func TestCommit_DestinationOverflow(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "p1", "cpu", 1000)
	f.upload(t, "p2", "cpu", math.MaxInt64-10)

	body := draft("p1", "p2", 1000)
	body["snapshot_token"] = "v1.0.0"
	rec := f.do(t, http.MethodPost, "/transfers/commit", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "overflow")
}

func TestCommit_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing token", draft("p1", "p2", 10), http.StatusBadRequest},
		{"zero amount", func() map[string]any {
			d := draft("p1", "p2", 0)
			d["snapshot_token"] = "v1.0.-"
			return d
		}(), http.StatusBadRequest},
		{"malformed token", func() map[string]any {
			d := draft("p1", "p2", 10)
			d["snapshot_token"] = "garbage"
			return d
		}(), http.StatusBadRequest},
		{"same product", func() map[string]any {
			d := draft("p1", "p1", 10)
			d["snapshot_token"] = "v1.0.0"
			return d
		}(), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.upload(t, "p1", "cpu", 1000)
			rec := f.do(t, http.MethodPost, "/transfers/commit", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSimulate_UnknownResource(t *testing.T) {
	f := newFixture(t)
	d := draft("p1", "p2", 10)
	d["resource_id"] = "gpu"
	rec := f.do(t, http.MethodPost, "/transfers/simulate", d)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsageReport(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "p1", "cpu", 4000)
	require.NoError(t, f.store.SetUsage(context.Background(), "p1", "cpu", 1000))

	at := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	_, err := f.engine.CaptureSamples(context.Background(), at)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/products/p1/usage?start=2026-03-01&end=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	series := decodeBody(t, rec)["series"].([]any)
	require.Len(t, series, 2)
	cpu := series[0].(map[string]any)
	assert.Equal(t, "cpu", cpu["resource_id"])
	points := cpu["points"].([]any)
	require.Len(t, points, 1)
	assert.EqualValues(t, 3000, points[0].(map[string]any)["free"])

	mem := series[1].(map[string]any)
	assert.Empty(t, mem["points"])
}

func TestUsageReport_BadRange(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing start", "end=2026-03-01"},
		{"bad format", "start=03/01/2026&end=2026-03-02"},
		{"inverted", "start=2026-03-05&end=2026-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodGet, "/products/p1/usage?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRecordSamples(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/products/p1/usage/samples", map[string]any{
		"samples": []map[string]any{
			{"resource_id": "cpu", "usage": 100, "limit": 400},
			{"resource_id": "memory", "usage": 10, "limit": 20, "free": 5},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["accepted"])
}

func TestBasePathAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, api.WithBasePath("/capacity"), api.WithMetrics(reg))

	rec := f.do(t, http.MethodGet, "/capacity/resources", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/resources", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := testutil.GatherAndCount(reg, "capacity_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
