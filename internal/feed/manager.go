// Package feed maintains persistent push connections to feed-capable
// venues, patching cached aggregates from incremental price messages.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-route-engine/internal/aggregator"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/source"
)

// ErrFeedDisconnected marks a dropped push connection. Always absorbed
// and reported on the error channel; exhausting the reconnect budget
// only deactivates the source for the session.
var ErrFeedDisconnected = errors.New("feed disconnected")

// Default feed configuration.
const (
	DefaultReconnectBase = time.Second
	DefaultMaxReconnects = 6
	DefaultPingInterval  = 30 * time.Second
)

// UpdateSink consumes parsed incremental price updates.
type UpdateSink interface {
	ApplyFeedUpdate(ctx context.Context, update domain.PriceUpdate)
}

// wireMessage is the push feed wire shape.
type wireMessage struct {
	Type      string `json:"type"`
	Source    string `json:"source"`
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// ConnStatus is the observable state of one feed connection.
type ConnStatus struct {
	Connected     bool
	Attempts      int
	LastHeartbeat time.Time
}

// Manager owns one long-lived connection per feed-capable source.
type Manager struct {
	registry *source.Registry
	sink     UpdateSink
	bus      *aggregator.Bus
	metrics  *observability.Metrics
	logger   *zap.Logger

	reconnectBase time.Duration
	maxReconnects int
	pingInterval  time.Duration

	mu      sync.Mutex
	status  map[string]*ConnStatus
	conns   map[string]*websocket.Conn
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

// ManagerOptions contains the dependencies for creating a Manager.
type ManagerOptions struct {
	Registry *source.Registry
	Sink     UpdateSink
	Bus      *aggregator.Bus
	Metrics  *observability.Metrics // optional
	Logger   *zap.Logger

	ReconnectBase time.Duration // doubling starts at 2*ReconnectBase
	MaxReconnects int
	PingInterval  time.Duration
}

// NewManager creates a feed manager. Start must be called to open
// connections.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = aggregator.NewBus(logger)
	}
	m := &Manager{
		registry:      opts.Registry,
		sink:          opts.Sink,
		bus:           bus,
		metrics:       opts.Metrics,
		logger:        logger,
		reconnectBase: opts.ReconnectBase,
		maxReconnects: opts.MaxReconnects,
		pingInterval:  opts.PingInterval,
		status:        make(map[string]*ConnStatus),
		conns:         make(map[string]*websocket.Conn),
		done:          make(chan struct{}),
	}
	if m.reconnectBase <= 0 {
		m.reconnectBase = DefaultReconnectBase
	}
	if m.maxReconnects <= 0 {
		m.maxReconnects = DefaultMaxReconnects
	}
	if m.pingInterval <= 0 {
		m.pingInterval = DefaultPingInterval
	}
	return m
}

// Start opens one connection per feed-capable source and keeps them
// alive until Stop.
func (m *Manager) Start(ctx context.Context) {
	for _, entry := range m.registry.WithFeeds() {
		m.wg.Add(1)
		go func(entry *source.Entry) {
			defer m.wg.Done()
			m.runSource(ctx, entry)
		}(entry)
	}
}

// Stop closes all connections and waits for their goroutines. Live
// sockets must be closed here: a healthy connection keeps its read
// deadline refreshed, so the read loop would otherwise block forever.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	for _, conn := range m.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	m.conns = nil
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}

// trackConn records the live connection for a source so Stop can close
// it. Returns false when the manager is already stopping; the conn is
// closed immediately in that case.
func (m *Manager) trackConn(name string, conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		if conn != nil {
			conn.Close()
		}
		return false
	}
	if conn == nil {
		delete(m.conns, name)
	} else {
		m.conns[name] = conn
	}
	return true
}

// Status returns a snapshot of per-source connection state.
func (m *Manager) Status() map[string]ConnStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ConnStatus, len(m.status))
	for name, st := range m.status {
		out[name] = *st
	}
	return out
}

// runSource maintains the connection lifecycle for one source:
// dial, read until failure, then reconnect after 2^attempts seconds,
// bounded by the reconnect budget.
func (m *Manager) runSource(ctx context.Context, entry *source.Entry) {
	name := entry.Config.Name

	m.mu.Lock()
	st := &ConnStatus{}
	m.status[name] = st
	m.mu.Unlock()

	// First Duration() call yields Min, so Min = 2*base makes the
	// delay after the n-th disconnect equal base * 2^n.
	b := &backoff.Backoff{
		Min:    2 * m.reconnectBase,
		Max:    time.Duration(1<<uint(m.maxReconnects)) * m.reconnectBase * 2,
		Factor: 2,
	}
	attempts := 0

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, entry.Config.FeedEndpoint, nil)
		if err == nil {
			if !m.trackConn(name, conn) {
				return
			}
			// Open resets the reconnect budget.
			attempts = 0
			b.Reset()
			m.setStatus(name, func(st *ConnStatus) {
				st.Connected = true
				st.Attempts = 0
				st.LastHeartbeat = time.Now()
			})
			m.logger.Info("feed connected", zap.String("source", name))

			readErr := m.readLoop(ctx, name, conn)
			m.trackConn(name, nil)
			conn.Close()
			m.setStatus(name, func(st *ConnStatus) { st.Connected = false })

			select {
			case <-m.done:
				return
			case <-ctx.Done():
				return
			default:
			}
			err = readErr
		}

		attempts++
		m.setStatus(name, func(st *ConnStatus) { st.Attempts = attempts })
		m.bus.PublishError(fmt.Errorf("%w: %s (attempt %d): %v", ErrFeedDisconnected, name, attempts, err))
		if m.metrics != nil {
			m.metrics.FeedReconnects.WithLabelValues(name).Inc()
		}

		if attempts > m.maxReconnects {
			// Budget exhausted: permanently inactive for the session.
			entry.MarkInactive()
			if m.metrics != nil {
				m.metrics.FeedSourcesDropped.Inc()
			}
			m.logger.Warn("feed reconnect budget exhausted, source deactivated",
				zap.String("source", name),
				zap.Int("attempts", attempts),
			)
			return
		}

		delay := b.Duration()
		m.logger.Debug("scheduling feed reconnect",
			zap.String("source", name),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// readLoop consumes messages until the connection fails. A ping
// heartbeat detects silently dead connections: missing two intervals
// trips the read deadline.
func (m *Manager) readLoop(ctx context.Context, name string, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
	conn.SetPongHandler(func(string) error {
		m.setStatus(name, func(st *ConnStatus) { st.LastHeartbeat = time.Now() })
		conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
		return nil
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingStop:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
		m.setStatus(name, func(st *ConnStatus) { st.LastHeartbeat = time.Now() })

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.bus.PublishError(fmt.Errorf("feed %s: bad message: %w", name, err))
			continue
		}
		if msg.Type != "price" {
			continue
		}

		price, err := decimal.NewFromString(msg.Price)
		if err != nil || !price.IsPositive() {
			m.bus.PublishError(fmt.Errorf("feed %s: bad price %q", name, msg.Price))
			continue
		}

		if m.metrics != nil {
			m.metrics.FeedMessages.WithLabelValues(name).Inc()
		}

		ts := time.Now()
		if msg.Timestamp > 0 {
			ts = time.UnixMilli(msg.Timestamp)
		}
		m.sink.ApplyFeedUpdate(ctx, domain.PriceUpdate{
			Source:    name,
			PairKey:   msg.Pair,
			Price:     price,
			Timestamp: ts,
		})
	}
}

func (m *Manager) setStatus(name string, fn func(*ConnStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.status[name]; ok {
		fn(st)
	}
}
