package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/api"
	audithook "github.com/xraph/capacity/audit_hook"
	"github.com/xraph/capacity/observability"
	"github.com/xraph/capacity/store/memory"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var (
		configPath  string
		addr        string
		metricsAddr string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capacity HTTP API on an in-memory store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}
			if flags.Changed("log-level") {
				cfg.Server.LogLevel = logLevel
			}

			logger, err := newLogger(cfg.Server.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file with server, capacity, catalog and quotas sections")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address of the API server")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address of the Prometheus metrics server; empty disables it")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level. One of: debug|info|warn|error")

	return cmd
}

func serve(ctx context.Context, cfg fileConfig, logger *slog.Logger) error {
	reg := prometheus.DefaultRegisterer

	opts := append(cfg.Capacity.EngineOptions(),
		capacity.WithLogger(logger),
		capacity.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		capacity.WithPlugin(audithook.New(auditLogRecorder(logger), audithook.WithLogger(logger))),
	)
	engine := capacity.New(memory.New(), opts...)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Error("engine stop failed", "error", err)
		}
	}()

	if err := cfg.seed(ctx, engine); err != nil {
		return err
	}

	handler := api.New(engine,
		api.WithLogger(logger),
		api.WithBasePath(cfg.Capacity.BasePath),
		api.WithMetrics(reg),
	)
	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: handler}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		logger.Info("listening", "addr", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
	return serveErr
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}

// auditLogRecorder writes audit events to the log.
func auditLogRecorder(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"reason", evt.Reason,
			"metadata", evt.Metadata,
		)
		return nil
	}
}
