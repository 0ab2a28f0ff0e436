package aggregator

import (
	"sync"

	"go.uber.org/zap"

	"dex-route-engine/internal/domain"
)

// Bus delivers engine events to registered listeners synchronously.
// Each listener runs under its own recover, so one bad listener never
// breaks the others or the publishing pass.
type Bus struct {
	mu             sync.RWMutex
	priceListeners []func(*domain.AggregatedPrice)
	arbListeners   []func(*domain.ArbitrageOpportunity)
	errListeners   []func(error)
	logger         *zap.Logger
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// OnPriceUpdate registers a listener for recomputed aggregates.
func (b *Bus) OnPriceUpdate(fn func(*domain.AggregatedPrice)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priceListeners = append(b.priceListeners, fn)
}

// OnArbitrageOpportunity registers a listener for detected
// opportunities.
func (b *Bus) OnArbitrageOpportunity(fn func(*domain.ArbitrageOpportunity)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arbListeners = append(b.arbListeners, fn)
}

// OnError registers a listener for absorbed per-source failures.
func (b *Bus) OnError(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errListeners = append(b.errListeners, fn)
}

// PublishPrice delivers an aggregate to all price listeners.
func (b *Bus) PublishPrice(price *domain.AggregatedPrice) {
	b.mu.RLock()
	listeners := b.priceListeners
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.safeCall(func() { fn(price) })
	}
}

// PublishOpportunity delivers an opportunity to all listeners.
func (b *Bus) PublishOpportunity(opp *domain.ArbitrageOpportunity) {
	b.mu.RLock()
	listeners := b.arbListeners
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.safeCall(func() { fn(opp) })
	}
}

// PublishError delivers an absorbed failure to all error listeners.
func (b *Bus) PublishError(err error) {
	b.mu.RLock()
	listeners := b.errListeners
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.safeCall(func() { fn(err) })
	}
}

func (b *Bus) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
