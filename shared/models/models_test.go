package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	for _, iv := range AllIntervals {
		parsed, err := ParseInterval(string(iv))
		require.NoError(t, err)
		assert.Equal(t, iv, parsed)
		assert.Positive(t, parsed.Seconds())
	}

	_, err := ParseInterval("1h")
	assert.ErrorIs(t, err, ErrUnknownInterval, "intervals are case sensitive")

	assert.Equal(t, int64(60), Interval1m.Seconds())
	assert.Equal(t, int64(2592000), Interval1M.Seconds())
	assert.Zero(t, Interval("2D").Seconds())
}

func TestSubscriptionKey(t *testing.T) {
	key := SubscriptionKey{Symbol: "EUR/USD", Interval: Interval15m}
	assert.Equal(t, "EUR/USD@15m", key.String())

	parsed, err := ParseSubscriptionKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"BTCUSDT", "@1D", "BTCUSDT@2D"} {
		_, err := ParseSubscriptionKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestConnectionStateBanner(t *testing.T) {
	assert.Empty(t, StateConnected.Banner())
	assert.Equal(t, "Connection lost -- reconnecting...", StateReconnecting.Banner())
	assert.Equal(t, "Market data disconnected. Check your connection.", StateDisconnected.Banner())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}

func TestBarAndChartType(t *testing.T) {
	assert.True(t, Bar{Open: 1, Close: 1}.Bullish())
	assert.False(t, Bar{Open: 2, Close: 1}.Bullish())

	tick := Tick{Symbol: "BTCUSDT", Interval: Interval1H}
	assert.Equal(t, SubscriptionKey{Symbol: "BTCUSDT", Interval: Interval1H}, tick.Key())

	assert.True(t, ChartHeikinAshi.Valid())
	assert.False(t, ChartType("renko").Valid())
}
