// Package api exposes the capacity engine over HTTP.
//
// Routes (relative to the configured base path):
//
//	GET  /resources
//	GET  /quotas?product_id=a&product_id=b
//	PUT  /products/{productID}/quotas
//	POST /products/{productID}/usage/samples
//	GET  /products/{productID}/usage?start=YYYY-MM-DD&end=YYYY-MM-DD
//	POST /transfers/simulate
//	POST /transfers/commit
//	GET  /healthz
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/transfer"
	"github.com/xraph/capacity/usage"
)

// Engine is the part of *capacity.Engine the handlers call.
type Engine interface {
	ListResources(ctx context.Context) ([]*resource.Resource, error)
	ListQuotas(ctx context.Context, productIDs []string) (map[string][]*quota.Quota, error)
	UploadQuotas(ctx context.Context, productID string, items []quota.Allocation) ([]*quota.Quota, error)
	SimulateTransfer(ctx context.Context, d transfer.Draft) (*transfer.Simulation, error)
	CommitToken(ctx context.Context, d transfer.Draft, token string) (*transfer.Result, error)
	GetUsageReport(ctx context.Context, productID string, start, end time.Time) ([]*usage.Series, error)
	RecordSample(ctx context.Context, s *usage.Sample) error
	Health(ctx context.Context) error
}

// Handler serves the capacity HTTP API.
type Handler struct {
	engine   Engine
	router   chi.Router
	logger   *slog.Logger
	basePath string
	metrics  *httpMetrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithBasePath mounts every route under path, e.g. "/capacity".
func WithBasePath(path string) Option {
	return func(h *Handler) { h.basePath = path }
}

// WithMetrics records request counts and latencies on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(h *Handler) { h.metrics = newHTTPMetrics(reg) }
}

// New builds the router for engine.
func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.middleware)
	}

	if h.basePath == "" || h.basePath == "/" {
		h.routes(r)
	} else {
		r.Route(h.basePath, h.routes)
	}
	h.router = r
	return h
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/healthz", h.health)

	r.Get("/resources", h.listResources)
	r.Get("/quotas", h.listQuotas)

	r.Route("/products/{productID}", func(r chi.Router) {
		r.Put("/quotas", h.uploadQuotas)
		r.Get("/usage", h.usageReport)
		r.Post("/usage/samples", h.recordSamples)
	})

	r.Post("/transfers/simulate", h.simulateTransfer)
	r.Post("/transfers/commit", h.commitTransfer)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
