package subscriber

import (
	"testing"

	"github.com/linluma/chartsync/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Connected() bool {
	return m.Called().Bool(0)
}

func (m *mockTransport) Send(action Action, key models.SubscriptionKey) error {
	return m.Called(action, key).Error(0)
}

var (
	btcDaily = models.SubscriptionKey{Symbol: "BTCUSDT", Interval: models.Interval1D}
	ethHour  = models.SubscriptionKey{Symbol: "ETHUSDT", Interval: models.Interval1H}
)

func TestRegistryReferenceCounting(t *testing.T) {
	t.Run("WireMessagesOnFirstAndLastReference", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Connected").Return(true)
		transport.On("Send", ActionSubscribe, btcDaily).Return(nil).Once()
		transport.On("Send", ActionUnsubscribe, btcDaily).Return(nil).Once()

		r := NewRegistry()
		r.Bind(transport)

		require.NoError(t, r.Subscribe(btcDaily))
		require.NoError(t, r.Subscribe(btcDaily))
		assert.Equal(t, 2, r.Refs(btcDaily))

		// One consumer leaving must not kill the stream for the other
		require.NoError(t, r.Unsubscribe(btcDaily))
		assert.True(t, r.Has(btcDaily))

		require.NoError(t, r.Unsubscribe(btcDaily))
		assert.False(t, r.Has(btcDaily))

		transport.AssertExpectations(t)
		transport.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("UnknownKeyUnsubscribeIsNoop", func(t *testing.T) {
		transport := &mockTransport{}
		r := NewRegistry()
		r.Bind(transport)

		assert.NoError(t, r.Unsubscribe(ethHour))
		transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("OfflineChangesAreTrackedOnly", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Connected").Return(false)

		r := NewRegistry()
		r.Bind(transport)

		require.NoError(t, r.Subscribe(btcDaily))
		require.NoError(t, r.Subscribe(ethHour))

		assert.Equal(t, []models.SubscriptionKey{btcDaily, ethHour}, r.Keys())
		transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("SendFailureKeepsKeyForReplay", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Connected").Return(true)
		transport.On("Send", ActionSubscribe, ethHour).Return(assert.AnError)

		r := NewRegistry()
		r.Bind(transport)

		err := r.Subscribe(ethHour)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "subscribe ETHUSDT@1H")
		assert.True(t, r.Has(ethHour))
	})

	t.Run("UnboundRegistry", func(t *testing.T) {
		r := NewRegistry()
		assert.NoError(t, r.Subscribe(btcDaily))
		assert.NoError(t, r.Unsubscribe(btcDaily))
		assert.Empty(t, r.Keys())
	})
}
