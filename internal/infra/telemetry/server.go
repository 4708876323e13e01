package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

const shutdownGrace = 5 * time.Second

// HTTPServerOptions configures the observability listener. With neither
// surface enabled there is nothing to serve and StartHTTPServer returns
// right away.
type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        *HealthTracker
	Registry      prometheus.Gatherer
}

func (o HTTPServerOptions) handler() http.Handler {
	mux := http.NewServeMux()
	if o.EnableMetrics {
		registry := o.Registry
		if registry == nil {
			registry = prometheus.DefaultGatherer
		}
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if o.EnableHealthz {
		tracker := o.Health
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			report := HealthReport{Status: "ok"}
			if tracker != nil {
				report = tracker.Report()
			}
			code := http.StatusOK
			if report.Status != "ok" {
				code = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(report)
		})
	}
	return mux
}

// StartHTTPServer serves /metrics and /healthz until ctx is cancelled.
// A clean ctx-driven shutdown returns nil; only a listen failure or a
// failed shutdown is an error.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           opts.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	failed := make(chan error, 1)
	go func() {
		logger.Info("observability server listening",
			zap.String("addr", addr),
			zap.Bool("metrics", opts.EnableMetrics),
			zap.Bool("healthz", opts.EnableHealthz),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("observability server failed to start: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("observability server stopped")
	return nil
}
