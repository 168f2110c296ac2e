package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/linluma/chartsync/client/metrics"
	"github.com/linluma/chartsync/client/subscriber"
	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
)

// ErrNotConnected is returned when sending while no transport is open
var ErrNotConnected = errors.New("feed not connected")

// Conn is the subset of *websocket.Conn the connection uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc opens a transport to url
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Options configures a Connection
type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	Retry            RetryConfig
	Clock            clock.Clock
	Logger           *logger.Logger
	Metrics          *metrics.Metrics
}

// Connection owns the single websocket to the market data server and reconnects it with backoff
type Connection struct {
	url      string
	clock    clock.Clock
	retry    RetryConfig
	backoff  *ReconnectBackOff
	registry *subscriber.Registry
	handler  func(ServerMessage)
	onState  func(models.ConnectionState)
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    Conn
	state   models.ConnectionState
	dialing bool
	stopped bool
	session uint64 // bumped on every open and on Disconnect, stale readers and dials compare against it
	timer   *clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc

	// Allow test override of dial function
	dialFunc DialFunc
}

// NewConnection creates a disconnected Connection. Subscriptions in registry are replayed on every open
func NewConnection(opts Options, registry *subscriber.Registry, handler func(ServerMessage), onState func(models.ConnectionState)) *Connection {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}

	c := &Connection{
		url:      opts.URL,
		clock:    opts.Clock,
		retry:    opts.Retry,
		backoff:  NewReconnectBackOff(opts.Retry),
		registry: registry,
		handler:  handler,
		onState:  onState,
		log:      opts.Logger.WithFields(logger.NewField("component", "feed")),
		metrics:  opts.Metrics,
		state:    models.StateDisconnected,
		dialFunc: websocketDialer(opts.HandshakeTimeout),
	}
	registry.Bind(c)
	return c
}

func websocketDialer(timeout time.Duration) DialFunc {
	return func(ctx context.Context, url string) (Conn, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: timeout,
		}
		conn, _, err := dialer.DialContext(ctx, url, http.Header{})
		if err != nil {
			return nil, fmt.Errorf("failed to dial WebSocket: %w", err)
		}
		return conn, nil
	}
}

// Connect opens the transport. It is a no-op while a transport is open or being opened
func (c *Connection) Connect() {
	c.mu.Lock()
	c.stopped = false
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	c.open()
}

// open dials once. Failures schedule the next attempt instead of returning
func (c *Connection) open() {
	c.mu.Lock()
	if c.stopped || c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.dialing = true
	session := c.session
	ctx := c.ctx
	c.state = models.StateConnecting
	c.mu.Unlock()
	c.notify(models.StateConnecting)

	c.log.Info("connecting to market data feed", logger.NewField("url", c.url))
	conn, err := c.dialFunc(ctx, c.url)

	c.mu.Lock()
	if c.stopped || c.session != session {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.dialing = false
	if err != nil {
		state := c.scheduleReconnectLocked(err)
		c.mu.Unlock()
		c.notify(state)
		return
	}

	c.conn = conn
	c.session++
	session = c.session
	attempts := c.backoff.Attempt()
	c.backoff.Reset()
	c.state = models.StateConnected
	c.mu.Unlock()

	c.log.Info("market data feed connected", logger.NewField("failed_attempts", attempts))
	c.notify(models.StateConnected)

	go c.readMessages(conn, session)
	c.resubscribe()
}

// scheduleReconnectLocked arms the reconnect timer and returns the state to report.
// Must be called with c.mu held
func (c *Connection) scheduleReconnectLocked(cause error) models.ConnectionState {
	attempt := c.backoff.Attempt()
	delay := c.backoff.NextBackOff()

	state := models.StateReconnecting
	if attempt+1 >= c.retry.DisconnectThreshold {
		state = models.StateDisconnected
	}
	c.state = state
	c.timer = c.clock.AfterFunc(delay, c.open)
	c.metrics.ReconnectScheduled()

	c.log.Warn("market data feed unavailable, reconnect scheduled",
		logger.NewField("attempt", attempt),
		logger.NewField("delay", delay.String()),
		logger.NewField("state", state.String()),
		logger.NewField("error", cause.Error()),
	)
	return state
}

// resubscribe replays every tracked key on a fresh transport
func (c *Connection) resubscribe() {
	for _, key := range c.registry.Keys() {
		if err := c.Send(subscriber.ActionSubscribe, key); err != nil {
			c.log.Warn("failed to replay subscription",
				logger.NewField("key", key.String()),
				logger.NewField("error", err.Error()),
			)
		}
	}
}

// readMessages reads frames until the transport fails
func (c *Connection) readMessages(conn Conn, session uint64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(fmt.Errorf("feed reader panic recovered: %v", r))
			c.handleClose(session, fmt.Errorf("reader panic: %v", r))
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("feed connection closed unexpectedly", logger.NewField("error", err.Error()))
			}
			c.handleClose(session, err)
			return
		}
		c.processMessage(raw)
	}
}

// processMessage decodes one frame. Malformed frames are dropped and the connection stays open
func (c *Connection) processMessage(raw []byte) {
	msg, err := decodeServerMessage(raw)
	if err != nil {
		c.metrics.FrameDropped()
		c.log.Warn("dropping malformed feed message", logger.NewField("error", err.Error()))
		return
	}
	if c.handler != nil {
		c.handler(msg)
	}
}

// handleClose enters the retry path unless the close was intentional or stale
func (c *Connection) handleClose(session uint64, cause error) {
	c.mu.Lock()
	if c.stopped || session != c.session {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	state := c.scheduleReconnectLocked(cause)
	c.mu.Unlock()

	c.notify(state)
}

// Disconnect cancels any pending reconnect and closes the transport without retrying
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.ctx, c.cancel = nil, nil
	}
	conn := c.conn
	c.conn = nil
	c.dialing = false
	c.session++
	c.backoff.Reset()
	changed := c.state != models.StateDisconnected
	c.state = models.StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug("error closing feed connection", logger.NewField("error", err.Error()))
		}
	}
	if changed {
		c.log.Info("market data feed disconnected")
		c.notify(models.StateDisconnected)
	}
}

// Send writes a subscription message on the open transport
func (c *Connection) Send(action subscriber.Action, key models.SubscriptionKey) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := ClientMessage{
		Action:   action,
		Symbol:   key.Symbol,
		Interval: string(key.Interval),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s message: %w", action, err)
	}
	return nil
}

// Connected reports whether the transport is open
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.state == models.StateConnected
}

// State returns the current connection state
func (c *Connection) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the current consecutive failure count
func (c *Connection) Attempt() int {
	return c.backoff.Attempt()
}

func (c *Connection) notify(state models.ConnectionState) {
	c.metrics.SetFeedState(int(state))
	if c.onState != nil {
		c.onState(state)
	}
}
