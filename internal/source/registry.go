package source

import (
	"sync"
	"time"

	"dex-route-engine/internal/config"
)

// Entry is one registered venue: static metadata, its adapter and its
// sliding-window limiter.
type Entry struct {
	Config  config.SourceConfig
	Adapter Adapter

	limiter  *SlidingWindow
	mu       sync.Mutex
	inactive bool // set when feed reconnects are exhausted; session-scoped
}

// Admit consults the venue's sliding window, recording the request
// when admitted.
func (e *Entry) Admit(now time.Time) bool {
	return e.limiter.Admit(now)
}

// MarkInactive removes the venue from rotation for the rest of the
// session (feed reconnect budget exhausted).
func (e *Entry) MarkInactive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inactive = true
}

// Active reports whether the venue participates in aggregation passes.
func (e *Entry) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Config.Enabled && !e.inactive
}

// SupportsChain reports whether the venue serves the given network.
func (e *Entry) SupportsChain(chainID int64) bool {
	if len(e.Config.Chains) == 0 {
		return true
	}
	for _, id := range e.Config.Chains {
		if id == chainID {
			return true
		}
	}
	return false
}

// Registry holds all configured venues keyed by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a venue. A nil adapter selects by cfg.Adapter: the
// default quote-API adapter, or the pool-state adapter for venues that
// serve reserve snapshots.
func (r *Registry) Register(cfg config.SourceConfig, adapter Adapter) *Entry {
	if adapter == nil {
		switch cfg.Adapter {
		case "pool_state":
			adapter = &PoolStateAdapter{Name: cfg.Name}
		default:
			adapter = &DefaultAdapter{Name: cfg.Name}
		}
	}
	entry := &Entry{
		Config:  cfg,
		Adapter: adapter,
		limiter: NewSlidingWindow(cfg.RateLimit, cfg.RateWindow.Std()),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cfg.Name] = entry
	return entry
}

// Get returns the entry for a venue name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Active returns all venues currently in rotation for the given chain.
func (r *Registry) Active(chainID int64) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Active() && entry.SupportsChain(chainID) {
			out = append(out, entry)
		}
	}
	return out
}

// WithFeeds returns all active venues that expose a push feed.
func (r *Registry) WithFeeds() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Active() && entry.Config.FeedEndpoint != "" {
			out = append(out, entry)
		}
	}
	return out
}
