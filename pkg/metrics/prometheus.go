package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector records ledger operation metrics on a private Prometheus
// registry and serves them over /metrics.
type Collector struct {
	registry          *prometheus.Registry
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	log               zerolog.Logger
}

// NewCollector creates a Collector with its own registry.
func NewCollector(log zerolog.Logger) *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		operationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations by type and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to execute a ledger operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		log: log,
	}
}

// RecordOperation implements domain.MetricsRecorder.
func (c *Collector) RecordOperation(operation string, success bool, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.operationsTotal.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler returns the /metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background and returns the
// server so the caller can shut it down.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return server
}

// Shutdown gracefully stops a server returned by StartServer.
func (c *Collector) Shutdown(ctx context.Context, server *http.Server) error {
	return server.Shutdown(ctx)
}
