package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the chart client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FeedReconnects  prometheus.Counter
	FeedState       prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected, 3=reconnecting
	MalformedFrames prometheus.Counter

	TicksApplied *prometheus.CounterVec // labels: result=updated|appended
	TicksDropped *prometheus.CounterVec // labels: reason=stale|mismatch

	Backfills          *prometheus.CounterVec // labels: outcome=success|failure|stale
	HistoryFailures    prometheus.Counter
	SyntheticFallbacks prometheus.Counter
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_feed_reconnects_total",
			Help: "Reconnection attempts scheduled after a lost or failed connection",
		}),
		FeedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartsync_feed_state",
			Help: "Feed connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_feed_malformed_frames_total",
			Help: "Inbound frames dropped because they could not be decoded",
		}),
		TicksApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartsync_ticks_applied_total",
			Help: "Ticks merged into the chart buffer",
		}, []string{"result"}),
		TicksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartsync_ticks_dropped_total",
			Help: "Ticks discarded by the merge engine",
		}, []string{"reason"}),
		Backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartsync_backfills_total",
			Help: "Completed history backfills by outcome",
		}, []string{"outcome"}),
		HistoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_history_failures_total",
			Help: "History requests that returned an error",
		}),
		SyntheticFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_synthetic_fallbacks_total",
			Help: "Chart loads served from the synthetic generator after a history failure",
		}),
	}

	m.registry.MustRegister(
		m.FeedReconnects,
		m.FeedState,
		m.MalformedFrames,
		m.TicksApplied,
		m.TicksDropped,
		m.Backfills,
		m.HistoryFailures,
		m.SyntheticFallbacks,
	)

	return m
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}

func (m *Metrics) SetFeedState(state int) {
	if m == nil {
		return
	}
	m.FeedState.Set(float64(state))
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.MalformedFrames.Inc()
}

func (m *Metrics) TickApplied(result string) {
	if m == nil {
		return
	}
	m.TicksApplied.WithLabelValues(result).Inc()
}

func (m *Metrics) TickDropped(reason string) {
	if m == nil {
		return
	}
	m.TicksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BackfillDone(outcome string) {
	if m == nil {
		return
	}
	m.Backfills.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HistoryFailed() {
	if m == nil {
		return
	}
	m.HistoryFailures.Inc()
}

func (m *Metrics) SyntheticFallback() {
	if m == nil {
		return
	}
	m.SyntheticFallbacks.Inc()
}
