package synthetic

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/linluma/chartsync/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockClockAt(t time.Time) *clock.Mock {
	c := clock.NewMock()
	c.Set(t)
	return c
}

func TestGenerateShape(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(nil, mockClockAt(now))

	for _, interval := range models.AllIntervals {
		t.Run(string(interval), func(t *testing.T) {
			bars := g.Generate("BTCUSDT", interval)
			require.Len(t, bars, BarCount(interval))

			spacing := interval.Seconds()
			assert.Equal(t, now.Unix()-int64(len(bars))*spacing, bars[0].Time)
			assert.Equal(t, now.Unix()-spacing, bars[len(bars)-1].Time)

			for i, bar := range bars {
				if i > 0 {
					assert.Equal(t, spacing, bar.Time-bars[i-1].Time)
				}
				assert.GreaterOrEqual(t, bar.High, bar.Open)
				assert.GreaterOrEqual(t, bar.High, bar.Close)
				assert.LessOrEqual(t, bar.Low, bar.Open)
				assert.LessOrEqual(t, bar.Low, bar.Close)
				assert.GreaterOrEqual(t, bar.Volume, 100000.0)
				assert.LessOrEqual(t, bar.Volume, 1000000.0)
				assert.False(t, bar.Placeholder)
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	early := NewGenerator(nil, mockClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	late := NewGenerator(nil, mockClockAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	a := early.Generate("ETHUSDT", models.Interval4H)
	b := late.Generate("ETHUSDT", models.Interval4H)
	require.Equal(t, len(a), len(b))

	for i := range a {
		assert.Equal(t, a[i].Close, b[i].Close)
		assert.Equal(t, a[i].Volume, b[i].Volume)
	}
	assert.NotEqual(t, a[0].Time, b[0].Time)

	other := early.Generate("ETHUSDT", models.Interval1H)
	assert.NotEqual(t, a[0].Close, other[0].Close, "seed depends on the interval")

	assert.Equal(t, 3400.0, a[0].Open, "series starts at the catalog base price")
}

func TestGenerateUnknownInterval(t *testing.T) {
	g := NewGenerator(nil, clock.NewMock())
	assert.Nil(t, g.Generate("BTCUSDT", models.Interval("2D")))
}

func TestSeedFunctions(t *testing.T) {
	assert.Equal(t, uint32(97), hashString("a"))
	assert.Equal(t, uint32(3105), hashString("ab"))

	rand := newLCG(0)
	assert.InDelta(t, 1013904223.0/4294967295.0, rand(), 1e-15)

	assert.Equal(t, 67012.346, precision8(67012.3456))
	assert.Equal(t, 0.12345679, precision8(0.123456789))
}

func TestCatalog(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c := DefaultCatalog()
		require.NoError(t, c.Validate())
		assert.Len(t, c.Names(), 10)

		sol, ok := c.Lookup("SOLUSDT")
		assert.True(t, ok)
		assert.Equal(t, 175.0, sol.BasePrice)

		fallback, ok := c.Lookup("UNKNOWN")
		assert.False(t, ok)
		assert.Equal(t, "BTCUSDT", fallback.Symbol)
	})

	t.Run("LoadYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "symbols.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`symbols:
  - symbol: TESTUSDT
    name: Test
    base_price: 10
    volatility: 0.02
  - symbol: OTHERUSDT
    name: Other
    base_price: 2.5
    volatility: 0.05
`), 0o644))

		c, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"TESTUSDT", "OTHERUSDT"}, c.Names())

		g := NewGenerator(c, clock.NewMock())
		bars := g.Generate("OTHERUSDT", models.Interval1W)
		assert.Equal(t, 2.5, bars[0].Open)
	})

	t.Run("Invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "symbols.yaml")
		require.NoError(t, os.WriteFile(path, []byte("symbols:\n  - symbol: BAD\n    base_price: 0\n    volatility: 0.1\n"), 0o644))

		_, err := LoadCatalog(path)
		assert.ErrorContains(t, err, "base price")

		_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}
