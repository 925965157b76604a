// Package metrics exports watcher telemetry as Prometheus metrics.
//
// Metrics exposed:
//   - aquawatch_batches_received_total: Counter of snapshot batches delivered by the feed
//   - aquawatch_batch_size_snapshots: Histogram of delivered batch sizes
//   - aquawatch_snapshots_pruned_total: Counter of snapshots evicted from the window
//   - aquawatch_tolerance_updates_total: Counter of tolerance table replacements
//   - aquawatch_feed_errors_total: Counter of feed errors by context and severity
//   - aquawatch_window_snapshots: Gauge of snapshots currently in the window
//   - aquawatch_window_lag_seconds: Gauge of the age of the newest snapshot
//   - aquawatch_tolerances_loaded: Gauge of metrics with a tolerance
//   - aquawatch_relay_connected: Gauge, 1 while the relay is connected
//   - aquawatch_active_subscriptions: Gauge of open subscriptions by stream
//   - aquawatch_degraded: Gauge, 1 while the bad-reading detector fires
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aquawatch/pkg/telemetry"
)

type Metrics struct {
	BatchesReceived     prometheus.Counter
	BatchSize           prometheus.Histogram
	SnapshotsPruned     prometheus.Counter
	ToleranceUpdates    prometheus.Counter
	FeedErrors          *prometheus.CounterVec
	WindowSnapshots     prometheus.Gauge
	WindowLag           prometheus.Gauge
	TolerancesLoaded    prometheus.Gauge
	RelayConnected      prometheus.Gauge
	ActiveSubscriptions *prometheus.GaugeVec
	Degraded            prometheus.Gauge

	clock telemetry.Clock
}

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer, clock telemetry.Clock) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if clock == nil {
		clock = telemetry.RealClock{}
	}
	f := promauto.With(reg)

	return &Metrics{
		BatchesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "aquawatch_batches_received_total",
			Help: "Total number of snapshot batches delivered by the feed",
		}),

		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aquawatch_batch_size_snapshots",
			Help:    "Number of snapshots in each delivered batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		}),

		SnapshotsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "aquawatch_snapshots_pruned_total",
			Help: "Total number of snapshots evicted from the window",
		}),

		ToleranceUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "aquawatch_tolerance_updates_total",
			Help: "Total number of tolerance table replacements",
		}),

		FeedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aquawatch_feed_errors_total",
			Help: "Total number of feed errors by context and severity",
		}, []string{"context", "severity"}),

		WindowSnapshots: f.NewGauge(prometheus.GaugeOpts{
			Name: "aquawatch_window_snapshots",
			Help: "Snapshots currently held in the window",
		}),

		WindowLag: f.NewGauge(prometheus.GaugeOpts{
			Name: "aquawatch_window_lag_seconds",
			Help: "Age of the newest snapshot in the window",
		}),

		TolerancesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "aquawatch_tolerances_loaded",
			Help: "Number of metrics with a loaded tolerance",
		}),

		RelayConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "aquawatch_relay_connected",
			Help: "1 while the relay connection is up",
		}),

		ActiveSubscriptions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aquawatch_active_subscriptions",
			Help: "Open feed subscriptions by stream",
		}, []string{"stream"}),

		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "aquawatch_degraded",
			Help: "1 while the newest snapshot carries a failed read or the window is empty",
		}),

		clock: clock,
	}
}

// Publish implements telemetry.TelemetryPublisher.
func (m *Metrics) Publish(event telemetry.TelemetryEvent) {
	switch e := event.(type) {
	case telemetry.SnapshotsReceived:
		m.BatchesReceived.Inc()
		m.BatchSize.Observe(float64(e.Count))
		m.WindowSnapshots.Set(float64(e.Count))
		if e.Count > 0 {
			m.WindowLag.Set(float64(m.clock.Now().Unix() - e.To))
		}
	case telemetry.SnapshotsPruned:
		m.SnapshotsPruned.Add(float64(e.Removed))
		m.WindowSnapshots.Set(float64(e.Remaining))
	case telemetry.TolerancesUpdated:
		m.ToleranceUpdates.Inc()
		m.TolerancesLoaded.Set(float64(e.Count))
	case telemetry.SubscriptionChanged:
		m.ActiveSubscriptions.WithLabelValues(e.Stream).Set(boolToFloat(e.Active))
	case telemetry.ConnectionStatusChanged:
		m.RelayConnected.Set(boolToFloat(e.Connected))
	case telemetry.FeedError:
		m.FeedErrors.WithLabelValues(e.Context, e.Severity.String()).Inc()
	case telemetry.DegradedChanged:
		m.Degraded.Set(boolToFloat(e.Degraded))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
