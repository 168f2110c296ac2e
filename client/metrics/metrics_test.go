package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ReconnectScheduled()
	m.ReconnectScheduled()
	m.SetFeedState(2)
	m.TickApplied("appended")
	m.TickDropped("stale")
	m.BackfillDone("success")
	m.HistoryFailed()
	m.SyntheticFallback()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FeedReconnects))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FeedState))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksApplied.WithLabelValues("appended")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksDropped.WithLabelValues("stale")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Backfills.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HistoryFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyntheticFallbacks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReconnectScheduled()
		m.SetFeedState(1)
		m.FrameDropped()
		m.TickApplied("updated")
		m.TickDropped("mismatch")
		m.BackfillDone("failure")
		m.HistoryFailed()
		m.SyntheticFallback()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ReconnectScheduled()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chartsync_feed_reconnects_total 1")
}
