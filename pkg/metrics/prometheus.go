package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeAborted   = "aborted"
)

type MetricsCollector struct {
	registry         *prometheus.Registry
	transfers        *prometheus.CounterVec
	transferDuration prometheus.Histogram
	feesCollected    prometheus.Counter
	lockTimeouts     prometheus.Counter
	observerFailures *prometheus.CounterVec
	fraudFlags       prometheus.Counter
	logger           *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		transfers: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Transfers by outcome",
		}, []string{"outcome"}),
		transferDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time from request to commit or failure, observers excluded",
			Buckets: prometheus.DefBuckets,
		}),
		feesCollected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_fees_collected_total",
			Help: "Sum of fees debited by committed transfers",
		}),
		lockTimeouts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Transfers aborted waiting for an account lock",
		}),
		observerFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_observer_failures_total",
			Help: "Post-commit observer failures",
		}, []string{"observer"}),
		fraudFlags: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_fraud_flags_total",
			Help: "Committed transfers flagged for fraud review",
		}),
		logger: logger,
	}
}

// RecordTransfer counts one finished transfer attempt. fee is only added for
// committed transfers.
func (m *MetricsCollector) RecordTransfer(outcome string, duration time.Duration, fee float64) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
	m.transferDuration.Observe(duration.Seconds())
	if outcome == OutcomeCommitted && fee > 0 {
		m.feesCollected.Add(fee)
	}
}

func (m *MetricsCollector) RecordLockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

func (m *MetricsCollector) RecordObserverFailure(observer string) {
	if m == nil {
		return
	}
	m.observerFailures.WithLabelValues(observer).Inc()
}

func (m *MetricsCollector) RecordFraudFlag() {
	if m == nil {
		return
	}
	m.fraudFlags.Inc()
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("Metrics server stopped")
	return nil
}
