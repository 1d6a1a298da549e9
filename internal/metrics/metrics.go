// Package metrics exposes Prometheus counters for SMTP negotiation,
// bounded fetches, and mail deliveries.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stn"

// Metrics holds the collectors registered for one process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	negotiations *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	fetchedBytes *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "smtp",
			Name:      "negotiation_attempts_total",
			Help:      "SMTP transport probe attempts by variant and outcome.",
		}, []string{"variant", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Bounded fetches by mode and outcome.",
		}, []string{"mode", "outcome"}),
		fetchedBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "payload_bytes",
			Help:      "Size of successfully fetched payloads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"mode"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "deliveries_total",
			Help:      "Notification mails by kind and status.",
		}, []string{"kind", "status"}),
	}

	m.registry.MustRegister(
		m.negotiations,
		m.fetches,
		m.fetchedBytes,
		m.deliveries,
		prometheus.NewGoCollector(),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Negotiation records one probe attempt.
func (m *Metrics) Negotiation(variant, outcome string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(variant, outcome).Inc()
}

// Fetch records one fetch outcome and, on success, its payload size.
func (m *Metrics) Fetch(mode, outcome string, size int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(mode, outcome).Inc()
	if outcome == "ok" {
		m.fetchedBytes.WithLabelValues(mode).Observe(float64(size))
	}
}

// Delivery records one delivery attempt.
func (m *Metrics) Delivery(kind, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, status).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
