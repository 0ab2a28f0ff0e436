package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/source"
	"dex-route-engine/internal/source/stub"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []domain.PriceUpdate
}

func (s *recordingSink) ApplyFeedUpdate(_ context.Context, update domain.PriceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
}

func (s *recordingSink) snapshot() []domain.PriceUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PriceUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

func feedEntry(t *testing.T, feedURL string) (*source.Registry, *source.Entry) {
	t.Helper()
	registry := source.NewRegistry()
	entry := registry.Register(config.SourceConfig{
		Name:         "dexA",
		FeedEndpoint: feedURL,
		RateLimit:    100,
		RateWindow:   config.Duration(time.Second),
		Enabled:      true,
	}, nil)
	return registry, entry
}

func waitConnected(t *testing.T, m *Manager, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := m.Status()[name]; ok && st.Connected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("feed %s never connected", name)
}

func TestManagerDeliversUpdates(t *testing.T) {
	venue := stub.NewVenue("dexA", 100, 1_000_000)
	defer venue.Close()

	registry, _ := feedEntry(t, venue.FeedURL())
	sink := &recordingSink{}
	m := NewManager(ManagerOptions{
		Registry:      registry,
		Sink:          sink,
		Logger:        zap.NewNop(),
		ReconnectBase: 10 * time.Millisecond,
		PingInterval:  50 * time.Millisecond,
	})
	m.Start(context.Background())
	defer m.Stop()

	waitConnected(t, m, "dexA")
	venue.PushUpdate("1:0xaaa:0xbbb", 110)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := sink.snapshot()[0]
	assert.Equal(t, "dexA", got.Source)
	assert.Equal(t, "1:0xaaa:0xbbb", got.PairKey)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(110)))
	assert.False(t, got.Timestamp.IsZero())
}

func TestManagerStopReturnsWhileConnectionIsHealthy(t *testing.T) {
	venue := stub.NewVenue("dexA", 100, 1_000_000)
	defer venue.Close()

	registry, _ := feedEntry(t, venue.FeedURL())
	m := NewManager(ManagerOptions{
		Registry:      registry,
		Sink:          &recordingSink{},
		Logger:        zap.NewNop(),
		ReconnectBase: 10 * time.Millisecond,
		PingInterval:  50 * time.Millisecond,
	})
	m.Start(context.Background())
	waitConnected(t, m, "dexA")

	// The read loop is blocked on a live socket; Stop must close it
	// rather than wait for a read that never fails.
	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a connection was live")
	}
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	venue := stub.NewVenue("dexA", 100, 1_000_000)
	defer venue.Close()

	registry, entry := feedEntry(t, venue.FeedURL())
	sink := &recordingSink{}
	m := NewManager(ManagerOptions{
		Registry:      registry,
		Sink:          sink,
		Logger:        zap.NewNop(),
		ReconnectBase: 5 * time.Millisecond,
		MaxReconnects: 10,
		PingInterval:  50 * time.Millisecond,
	})
	m.Start(context.Background())
	defer m.Stop()

	waitConnected(t, m, "dexA")
	venue.DropFeeds()

	// The reconnected session must deliver updates again.
	require.Eventually(t, func() bool {
		venue.PushUpdate("1:0xaaa:0xbbb", 120)
		return len(sink.snapshot()) > 0
	}, 3*time.Second, 25*time.Millisecond)

	assert.True(t, entry.Active(), "source must stay active after a recovered drop")
}

func TestManagerBackoffDoublesAndDeactivates(t *testing.T) {
	var mu sync.Mutex
	var dials []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		http.Error(w, "no feed here", http.StatusNotFound)
	}))
	defer server.Close()
	feedURL := "ws" + strings.TrimPrefix(server.URL, "http")

	base := 10 * time.Millisecond
	registry, entry := feedEntry(t, feedURL)
	m := NewManager(ManagerOptions{
		Registry:      registry,
		Sink:          &recordingSink{},
		Logger:        zap.NewNop(),
		ReconnectBase: base,
		MaxReconnects: 4,
		PingInterval:  50 * time.Millisecond,
	})
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return !entry.Active()
	}, 5*time.Second, 10*time.Millisecond, "source must deactivate once the budget is spent")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dials, 5, "budget of 4 reconnects allows 5 dials total")

	// The wait after the n-th failure is 2^n * base, so the gap
	// between the 3rd and 4th dials is at least 8 * base.
	assert.GreaterOrEqual(t, dials[2].Sub(dials[1]), 4*base)
	assert.GreaterOrEqual(t, dials[3].Sub(dials[2]), 8*base)
	assert.GreaterOrEqual(t, dials[4].Sub(dials[3]), 16*base)
}
