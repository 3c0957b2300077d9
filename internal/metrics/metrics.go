// Package metrics defines the Prometheus instruments for the mailbox
// reconciliation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle results.
const (
	CycleOK      = "ok"
	CycleError   = "error"
	CycleAborted = "aborted"
	CycleSkipped = "skipped"
)

// Metrics holds the pipeline's Prometheus metrics.
//
// Metrics:
//   - procure_poll_cycles_total{result} - polling cycles by outcome
//   - procure_messages_total{action} - messages by reconciliation outcome
//   - procure_poll_cycle_duration_seconds - duration of completed cycles
//   - procure_last_successful_fetch_timestamp_seconds - unix time of the last clean cycle
//   - procure_polling_running - 1 while the scheduler is armed
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec
	MessagesTotal *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge
	Running       prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg leaves them
// unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_poll_cycles_total",
				Help: "Total number of mailbox polling cycles by result",
			},
			[]string{"result"},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procure_messages_total",
				Help: "Total number of fetched messages by reconciliation action",
			},
			[]string{"action"},
		),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "procure_poll_cycle_duration_seconds",
			Help:    "Duration of mailbox polling cycles in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "procure_last_successful_fetch_timestamp_seconds",
			Help: "Unix time of the last polling cycle that completed without error",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "procure_polling_running",
			Help: "Whether the polling scheduler is running (1) or stopped (0)",
		}),
	}
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(result string, started time.Time) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(time.Since(started).Seconds())
	if result == CycleOK {
		m.LastSuccess.SetToCurrentTime()
	}
}

// ObserveMessage counts one message outcome.
func (m *Metrics) ObserveMessage(action string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(action).Inc()
}

// SetRunning records the scheduler state.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}
