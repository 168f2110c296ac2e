package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/linluma/chartsync/client/subscriber"
	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
)

// TickObserver receives price updates for the symbol it watches
type TickObserver func(models.Tick)

// StatusObserver receives every connection state change
type StatusObserver func(models.ConnectionState)

// Watch is the registration handle returned by Manager.Watch and Manager.WatchStatus
type Watch struct {
	ID   uuid.UUID
	stop func()
	once sync.Once
}

// Stop removes the observer. Safe to call more than once
func (w *Watch) Stop() {
	w.once.Do(w.stop)
}

// Lease keeps the shared connection open until released
type Lease struct {
	manager *Manager
	once    sync.Once
}

// Release gives the lease back. The last release closes the connection
func (l *Lease) Release() {
	l.once.Do(l.manager.release)
}

// Manager multiplexes every consumer onto one Connection
type Manager struct {
	conn     *Connection
	registry *subscriber.Registry
	log      *logger.Logger

	// lifecycle orders lease changes with the Connect/Disconnect they trigger
	lifecycle sync.Mutex
	leases    int

	mu       sync.RWMutex
	ticks    map[string]map[uuid.UUID]TickObserver
	statuses map[uuid.UUID]StatusObserver
	latest   map[string]models.Bar
}

// NewManager creates a manager with its own registry and connection
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	m := &Manager{
		registry: subscriber.NewRegistry(),
		log:      opts.Logger.WithFields(logger.NewField("component", "feed-manager")),
		ticks:    make(map[string]map[uuid.UUID]TickObserver),
		statuses: make(map[uuid.UUID]StatusObserver),
		latest:   make(map[string]models.Bar),
	}
	m.conn = NewConnection(opts, m.registry, m.handleMessage, m.handleState)
	return m
}

// Attach takes a lease on the connection, opening it for the first consumer.
// The first Attach dials synchronously and may block for up to the handshake timeout;
// a failed dial does not block further, it schedules the reconnect loop and returns
func (m *Manager) Attach() *Lease {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.leases++
	if m.leases == 1 {
		m.conn.Connect()
	}
	return &Lease{manager: m}
}

func (m *Manager) release() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.leases--
	if m.leases == 0 {
		m.conn.Disconnect()
	}
}

// Leases returns the number of outstanding leases
func (m *Manager) Leases() int {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.leases
}

// Subscribe starts (or shares) the stream for key
func (m *Manager) Subscribe(key models.SubscriptionKey) error {
	return m.registry.Subscribe(key)
}

// Unsubscribe releases one reference to the stream for key
func (m *Manager) Unsubscribe(key models.SubscriptionKey) error {
	return m.registry.Unsubscribe(key)
}

// Subscriptions returns every live key
func (m *Manager) Subscriptions() []models.SubscriptionKey {
	return m.registry.Keys()
}

// Watch registers observer for price updates of symbol
func (m *Manager) Watch(symbol string, observer TickObserver) *Watch {
	id := uuid.New()

	m.mu.Lock()
	if m.ticks[symbol] == nil {
		m.ticks[symbol] = make(map[uuid.UUID]TickObserver)
	}
	m.ticks[symbol][id] = observer
	m.mu.Unlock()

	return &Watch{ID: id, stop: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.ticks[symbol], id)
		if len(m.ticks[symbol]) == 0 {
			delete(m.ticks, symbol)
		}
	}}
}

// WatchStatus registers observer for connection state changes
func (m *Manager) WatchStatus(observer StatusObserver) *Watch {
	id := uuid.New()

	m.mu.Lock()
	m.statuses[id] = observer
	m.mu.Unlock()

	return &Watch{ID: id, stop: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.statuses, id)
	}}
}

// State returns the shared connection state
func (m *Manager) State() models.ConnectionState {
	return m.conn.State()
}

// LatestPrice returns the most recent bar seen for symbol on any interval
func (m *Manager) LatestPrice(symbol string) (models.Bar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bar, ok := m.latest[symbol]
	return bar, ok
}

func (m *Manager) handleMessage(msg ServerMessage) {
	switch msg.Type {
	case TypePriceUpdate:
		tick := msg.Tick()

		m.mu.Lock()
		m.latest[tick.Symbol] = tick.Bar
		observers := make([]TickObserver, 0, len(m.ticks[tick.Symbol]))
		for _, observer := range m.ticks[tick.Symbol] {
			observers = append(observers, observer)
		}
		m.mu.Unlock()

		for _, observer := range observers {
			observer(tick)
		}

	case TypeConnectionStatus:
		if msg.Status == "error" {
			m.log.Warn("server reported connection error", logger.NewField("message", msg.Message))
			return
		}
		m.log.Debug("server connection status", logger.NewField("status", msg.Status))

	case TypeSubscribed, TypeUnsubscribed:
		m.log.Debug("subscription acknowledged",
			logger.NewField("type", msg.Type),
			logger.NewField("symbol", msg.Symbol),
			logger.NewField("interval", msg.Interval),
		)
	}
}

func (m *Manager) handleState(state models.ConnectionState) {
	m.mu.RLock()
	observers := make([]StatusObserver, 0, len(m.statuses))
	for _, observer := range m.statuses {
		observers = append(observers, observer)
	}
	m.mu.RUnlock()

	for _, observer := range observers {
		observer(state)
	}
}
