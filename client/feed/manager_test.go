package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/linluma/chartsync/client/subscriber"
	"github.com/linluma/chartsync/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	btcDaily = models.SubscriptionKey{Symbol: "BTCUSDT", Interval: models.Interval1D}
	ethHour  = models.SubscriptionKey{Symbol: "ETHUSDT", Interval: models.Interval1H}
)

// feedServer is a websocket server that records client messages and can push frames
type feedServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan ClientMessage
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{received: make(chan ClientMessage, 100)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fs.received <- msg
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *feedServer) connections() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

func (fs *feedServer) push(t *testing.T, frame string) {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// dropAll closes every server side connection without a close handshake
func (fs *feedServer) dropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, conn := range fs.conns {
		conn.Close()
	}
}

func (fs *feedServer) expectMessages(t *testing.T, n int) []ClientMessage {
	msgs := make([]ClientMessage, 0, n)
	for len(msgs) < n {
		select {
		case msg := <-fs.received:
			msgs = append(msgs, msg)
		case <-time.After(waitFor):
			t.Fatalf("expected %d client messages, got %d", n, len(msgs))
		}
	}
	return msgs
}

func fastOptions(url string, clk clock.Clock) Options {
	return Options{
		URL:              url,
		HandshakeTimeout: time.Second,
		Clock:            clk,
		Retry: RetryConfig{
			InitialDelay:        time.Second,
			MaxDelay:            30 * time.Second,
			MaxJitter:           0,
			DisconnectThreshold: 5,
		},
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (r *stateRecorder) record(s models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ConnectionState(nil), r.states...)
}

func TestManagerConnectAndReplay(t *testing.T) {
	server := newFeedServer(t)
	m := NewManager(fastOptions(server.wsURL(), clock.NewMock()))

	// Registered while offline, sent on open
	require.NoError(t, m.Subscribe(btcDaily))
	require.NoError(t, m.Subscribe(ethHour))

	lease := m.Attach()
	defer lease.Release()

	assert.Equal(t, models.StateConnected, m.State())

	msgs := server.expectMessages(t, 2)
	assert.ElementsMatch(t, []ClientMessage{
		{Action: subscriber.ActionSubscribe, Symbol: "BTCUSDT", Interval: "1D"},
		{Action: subscriber.ActionSubscribe, Symbol: "ETHUSDT", Interval: "1H"},
	}, msgs)

	t.Run("LiveSubscribeIsSentImmediately", func(t *testing.T) {
		key := models.SubscriptionKey{Symbol: "SOLUSDT", Interval: models.Interval5m}
		require.NoError(t, m.Subscribe(key))
		msgs := server.expectMessages(t, 1)
		assert.Equal(t, ClientMessage{Action: subscriber.ActionSubscribe, Symbol: "SOLUSDT", Interval: "5m"}, msgs[0])

		require.NoError(t, m.Unsubscribe(key))
		msgs = server.expectMessages(t, 1)
		assert.Equal(t, subscriber.ActionUnsubscribe, msgs[0].Action)
	})
}

func TestManagerFanOut(t *testing.T) {
	server := newFeedServer(t)
	m := NewManager(fastOptions(server.wsURL(), clock.NewMock()))

	var btcTicks, ethTicks atomic.Int32
	var last atomic.Value
	btcWatch := m.Watch("BTCUSDT", func(tk models.Tick) {
		btcTicks.Add(1)
		last.Store(tk)
	})
	m.Watch("ETHUSDT", func(models.Tick) { ethTicks.Add(1) })

	lease := m.Attach()
	defer lease.Release()
	require.Eventually(t, func() bool { return server.connections() == 1 }, waitFor, tick)

	server.push(t, `{"type":"subscribed","symbol":"BTCUSDT","interval":"1D"}`)
	server.push(t, `not json at all`)
	server.push(t, `{"type":"price_update","symbol":"BTCUSDT","interval":"7m","candle":{"time":1}}`)
	server.push(t, `{"type":"connection_status","status":"error","message":"upstream lost"}`)
	server.push(t, `{"type":"price_update","symbol":"BTCUSDT","interval":"1D","candle":{"time":1704067200,"open":42000,"high":42500,"low":41800,"close":42300,"volume":12.5},"is_closed":false}`)

	require.Eventually(t, func() bool { return btcTicks.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), ethTicks.Load())
	assert.Equal(t, models.StateConnected, m.State(), "malformed frames must not close the connection")

	got := last.Load().(models.Tick)
	assert.Equal(t, btcDaily, got.Key())
	assert.Equal(t, int64(1704067200), got.Bar.Time)
	assert.Equal(t, 42300.0, got.Bar.Close)
	assert.False(t, got.Closed)

	price, ok := m.LatestPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 42300.0, price.Close)
	_, ok = m.LatestPrice("ETHUSDT")
	assert.False(t, ok)

	t.Run("StoppedWatchReceivesNothing", func(t *testing.T) {
		btcWatch.Stop()
		btcWatch.Stop()
		server.push(t, `{"type":"price_update","symbol":"BTCUSDT","interval":"1D","candle":{"time":1704067200,"open":1,"high":1,"low":1,"close":1,"volume":1},"is_closed":true}`)

		require.Eventually(t, func() bool {
			p, _ := m.LatestPrice("BTCUSDT")
			return p.Close == 1
		}, waitFor, tick)
		assert.Equal(t, int32(1), btcTicks.Load())
	})
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	server := newFeedServer(t)
	mockClock := clock.NewMock()
	m := NewManager(fastOptions(server.wsURL(), mockClock))

	states := &stateRecorder{}
	m.WatchStatus(states.record)

	require.NoError(t, m.Subscribe(btcDaily))
	lease := m.Attach()
	defer lease.Release()
	server.expectMessages(t, 1)

	server.dropAll()
	require.Eventually(t, func() bool { return m.State() == models.StateReconnecting }, waitFor, tick)

	// Nothing happens before the first delay elapses
	mockClock.Add(999 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, server.connections())

	mockClock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == models.StateConnected }, waitFor, tick)
	require.Eventually(t, func() bool { return server.connections() == 2 }, waitFor, tick)

	msgs := server.expectMessages(t, 1)
	assert.Equal(t, ClientMessage{Action: subscriber.ActionSubscribe, Symbol: "BTCUSDT", Interval: "1D"}, msgs[0])
	assert.Equal(t, 0, m.conn.Attempt(), "handshake resets the retry counter")

	require.Eventually(t, func() bool { return len(states.snapshot()) == 5 }, waitFor, tick)
	assert.Equal(t, []models.ConnectionState{
		models.StateConnecting,
		models.StateConnected,
		models.StateReconnecting,
		models.StateConnecting,
		models.StateConnected,
	}, states.snapshot())
}

func TestConnectionFailureThreshold(t *testing.T) {
	mockClock := clock.NewMock()
	m := NewManager(fastOptions("ws://unused", mockClock))

	var dials atomic.Int32
	m.conn.dialFunc = func(ctx context.Context, url string) (Conn, error) {
		dials.Add(1)
		return nil, assert.AnError
	}

	states := &stateRecorder{}
	m.WatchStatus(states.record)

	lease := m.Attach()
	defer lease.Release()

	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, models.StateReconnecting, m.State())

	// Failures 2..5 arrive after 1s, 2s, 4s, 8s
	delays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, delay := range delays {
		mockClock.Add(delay)
		want := int32(i + 2)
		require.Eventually(t, func() bool { return dials.Load() == want }, waitFor, tick)
		require.Eventually(t, func() bool { return m.State() != models.StateConnecting }, waitFor, tick)
	}

	assert.Equal(t, models.StateDisconnected, m.State(), "fifth consecutive failure reports disconnected")

	// Scheduling continues on the same schedule
	mockClock.Add(16 * time.Second)
	require.Eventually(t, func() bool { return dials.Load() == 6 }, waitFor, tick)

	failures := func() []models.ConnectionState {
		var out []models.ConnectionState
		for _, s := range states.snapshot() {
			if s != models.StateConnecting {
				out = append(out, s)
			}
		}
		return out
	}
	require.Eventually(t, func() bool { return len(failures()) == 6 }, waitFor, tick)
	assert.Equal(t, []models.ConnectionState{
		models.StateReconnecting,
		models.StateReconnecting,
		models.StateReconnecting,
		models.StateReconnecting,
		models.StateDisconnected,
		models.StateDisconnected,
	}, failures())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	mockClock := clock.NewMock()
	m := NewManager(fastOptions("ws://unused", mockClock))

	var dials atomic.Int32
	m.conn.dialFunc = func(ctx context.Context, url string) (Conn, error) {
		dials.Add(1)
		return nil, assert.AnError
	}

	lease := m.Attach()
	assert.Equal(t, models.StateReconnecting, m.State())

	lease.Release()
	assert.Equal(t, models.StateDisconnected, m.State())

	mockClock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestLeaseReferenceCounting(t *testing.T) {
	server := newFeedServer(t)
	m := NewManager(fastOptions(server.wsURL(), clock.NewMock()))

	first := m.Attach()
	second := m.Attach()
	require.Eventually(t, func() bool { return server.connections() == 1 }, waitFor, tick)

	first.Release()
	first.Release()
	assert.Equal(t, models.StateConnected, m.State())

	second.Release()
	assert.Equal(t, models.StateDisconnected, m.State())

	t.Run("IntentionalCloseDoesNotRetry", func(t *testing.T) {
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, models.StateDisconnected, m.State())
		assert.Equal(t, 1, server.connections())
	})

	t.Run("ReattachOpensFreshTransport", func(t *testing.T) {
		lease := m.Attach()
		defer lease.Release()
		assert.Equal(t, models.StateConnected, m.State())
		require.Eventually(t, func() bool { return server.connections() == 2 }, waitFor, tick)
	})
}

func TestLeaseChurnKeepsConnectionForLastHolder(t *testing.T) {
	server := newFeedServer(t)
	m := NewManager(fastOptions(server.wsURL(), clock.NewMock()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				m.Attach().Release()
			}
		}()
	}

	held := m.Attach()
	defer held.Release()
	wg.Wait()

	assert.Equal(t, 1, m.Leases())
	assert.Equal(t, models.StateConnected, m.State(), "an outstanding lease always has an open transport")
}
