package aggregator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"dex-route-engine/internal/domain"
)

func TestBus_PanickingListenerDoesNotBreakOthers(t *testing.T) {
	bus := NewBus(nil)

	var delivered []string
	bus.OnPriceUpdate(func(*domain.AggregatedPrice) {
		delivered = append(delivered, "first")
	})
	bus.OnPriceUpdate(func(*domain.AggregatedPrice) {
		panic("bad listener")
	})
	bus.OnPriceUpdate(func(*domain.AggregatedPrice) {
		delivered = append(delivered, "third")
	})

	bus.PublishPrice(&domain.AggregatedPrice{PairKey: "1:a:b"})

	assert.Equal(t, []string{"first", "third"}, delivered)
}

func TestBus_DeliversToAllChannels(t *testing.T) {
	bus := NewBus(nil)

	var gotPrice, gotOpp bool
	var gotErr error
	bus.OnPriceUpdate(func(p *domain.AggregatedPrice) { gotPrice = p != nil })
	bus.OnArbitrageOpportunity(func(o *domain.ArbitrageOpportunity) { gotOpp = o != nil })
	bus.OnError(func(err error) { gotErr = err })

	bus.PublishPrice(&domain.AggregatedPrice{})
	bus.PublishOpportunity(&domain.ArbitrageOpportunity{})
	sentinel := errors.New("boom")
	bus.PublishError(sentinel)

	assert.True(t, gotPrice)
	assert.True(t, gotOpp)
	assert.Equal(t, sentinel, gotErr)
}

func TestBus_NoListenersIsFine(t *testing.T) {
	bus := NewBus(nil)
	bus.PublishPrice(&domain.AggregatedPrice{})
	bus.PublishOpportunity(&domain.ArbitrageOpportunity{})
	bus.PublishError(errors.New("ignored"))
}
