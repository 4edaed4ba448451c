// Package observability provides Prometheus metrics for the copy engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the engine. Construct one
// at startup with NewMetrics and pass it to the components that record.
type Metrics struct {
	// Stream metrics.
	TransactionsStreamed prometheus.Counter
	StreamRestarts       *prometheus.CounterVec
	ActiveWalletTasks    prometheus.Gauge

	// Classifier metrics.
	SignalsClassified  *prometheus.CounterVec
	OperationsSkipped  *prometheus.CounterVec
	ClassifierDuration prometheus.Histogram

	// Trading metrics.
	TradesCopied       *prometheus.CounterVec
	TradesFailed       *prometheus.CounterVec
	FallbacksTriggered prometheus.Counter
	SubmissionLatency  *prometheus.HistogramVec
	SimulationFailures prometheus.Counter

	// Signing metrics.
	SignaturesIssued  prometheus.Counter
	SignatureFailures *prometheus.CounterVec

	// Referral metrics.
	RewardEntriesWritten prometheus.Counter
	PayoutBatches        *prometheus.CounterVec
	FeeVolume            prometheus.Counter

	// Database metrics.
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors under the given namespace.
// An empty namespace defaults to "stellar_copy_engine".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stellar_copy_engine"
	}

	return &Metrics{
		TransactionsStreamed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "transactions_total",
			Help:      "Total transactions received from the stream",
		}),
		StreamRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "restarts_total",
			Help:      "Stream restarts by reason",
		}, []string{"reason"}),
		ActiveWalletTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_wallet_tasks",
			Help:      "Number of wallet tasks currently running",
		}),

		SignalsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "signals_total",
			Help:      "Trade signals extracted by kind",
		}, []string{"kind"}),
		OperationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "skipped_total",
			Help:      "Operations skipped by reason",
		}, []string{"reason"}),
		ClassifierDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Time spent classifying a transaction",
			Buckets:   prometheus.DefBuckets,
		}),

		TradesCopied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "copied_total",
			Help:      "Trades copied successfully by kind",
		}, []string{"kind"}),
		TradesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "failed_total",
			Help:      "Trades that failed by stage",
		}, []string{"stage"}),
		FallbacksTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "fallbacks_total",
			Help:      "Contract calls downgraded to the classic fallback path",
		}),
		SubmissionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "submission_seconds",
			Help:      "Time from submission to confirmation",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		SimulationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "simulation_failures_total",
			Help:      "Contract call simulations that returned an error",
		}),

		SignaturesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "signatures_total",
			Help:      "Transaction signatures produced",
		}),
		SignatureFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "failures_total",
			Help:      "Signing failures by reason",
		}, []string{"reason"}),

		RewardEntriesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "reward_entries_total",
			Help:      "Referral reward entries written",
		}),
		PayoutBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "payout_batches_total",
			Help:      "Payout batches by outcome",
		}, []string{"status"}),
		FeeVolume: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "fee_volume_stroops_total",
			Help:      "Cumulative service fees collected, in stroops",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSignal counts one classified trade signal of the given kind.
func (m *Metrics) RecordSignal(kind string) {
	m.SignalsClassified.WithLabelValues(kind).Inc()
}

// RecordSkip counts one skipped operation.
func (m *Metrics) RecordSkip(reason string) {
	m.OperationsSkipped.WithLabelValues(reason).Inc()
}

// RecordTradeCopied counts a successful copy and its submission latency.
func (m *Metrics) RecordTradeCopied(kind string, elapsed time.Duration) {
	m.TradesCopied.WithLabelValues(kind).Inc()
	m.SubmissionLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordTradeFailed counts a failed copy attempt at the given stage.
func (m *Metrics) RecordTradeFailed(stage string) {
	m.TradesFailed.WithLabelValues(stage).Inc()
}

// RecordDBQuery records a query's duration and, when err is non-nil, an error.
func (m *Metrics) RecordDBQuery(database, operation string, elapsed time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
