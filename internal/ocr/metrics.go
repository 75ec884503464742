package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pool's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	workersStarted prometheus.Counter
	workersStopped *prometheus.CounterVec
	pending        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "embykeeper",
				Subsystem: "ocr",
				Name:      "runs_total",
				Help:      "Total number of OCR runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "embykeeper",
				Subsystem: "ocr",
				Name:      "run_duration_seconds",
				Help:      "Duration of OCR runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		workersStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "embykeeper",
				Subsystem: "ocr",
				Name:      "workers_started_total",
				Help:      "Total number of worker processes started",
			},
		),
		workersStopped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "embykeeper",
				Subsystem: "ocr",
				Name:      "workers_stopped_total",
				Help:      "Total number of worker processes stopped by reason",
			},
			[]string{"reason"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "embykeeper",
				Subsystem: "ocr",
				Name:      "pending_requests",
				Help:      "Requests awaiting a worker reply",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.runDuration, m.workersStarted, m.workersStopped, m.pending)
	}
	return m
}

// runOutcome maps a Run error to a low-cardinality label.
func runOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeout(err):
		return "timeout"
	case IsInferenceError(err):
		return "inference_error"
	case IsAssetError(err):
		return "asset_error"
	case IsWorkerStopped(err):
		return "worker_stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *Metrics) observeRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(runOutcome(err)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) workerStarted() {
	if m == nil {
		return
	}
	m.workersStarted.Inc()
}

func (m *Metrics) workerStopped(reason string) {
	if m == nil {
		return
	}
	m.workersStopped.WithLabelValues(reason).Inc()
}

func (m *Metrics) pendingInc() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *Metrics) pendingDec() {
	if m == nil {
		return
	}
	m.pending.Dec()
}
