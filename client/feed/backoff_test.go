package feed

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestReconnectBackOffSchedule(t *testing.T) {
	t.Run("DoublesFromOneSecond", func(t *testing.T) {
		b := NewReconnectBackOff(DefaultRetryConfig())
		b.jitter = func(time.Duration) time.Duration { return 0 }

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}
		for i, want := range expected {
			assert.Equal(t, want, b.NextBackOff(), "attempt %d", i)
		}
		assert.Equal(t, len(expected), b.Attempt())
	})

	t.Run("JitterStaysBelowOneSecond", func(t *testing.T) {
		for round := 0; round < 50; round++ {
			b := NewReconnectBackOff(DefaultRetryConfig())
			for n := 0; n < 5; n++ {
				base := time.Duration(1<<n) * time.Second
				delay := b.NextBackOff()
				assert.GreaterOrEqual(t, delay, base)
				assert.Less(t, delay, base+time.Second)
			}
		}
	})

	t.Run("ResetStartsOver", func(t *testing.T) {
		b := NewReconnectBackOff(DefaultRetryConfig())
		b.jitter = func(time.Duration) time.Duration { return 0 }

		b.NextBackOff()
		b.NextBackOff()
		b.Reset()

		assert.Equal(t, 0, b.Attempt())
		assert.Equal(t, time.Second, b.NextBackOff())
	})

	t.Run("NeverStops", func(t *testing.T) {
		b := NewReconnectBackOff(DefaultRetryConfig())
		for i := 0; i < 100; i++ {
			assert.NotEqual(t, backoff.Stop, b.NextBackOff())
		}
	})
}
