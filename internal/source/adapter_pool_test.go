package source

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-route-engine/internal/amm"
	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
)

var (
	poolTokenIn  = domain.Token{Symbol: "WETH", Address: "0xc02a", ChainID: 1, Decimals: 18}
	poolTokenOut = domain.Token{Symbol: "USDC", Address: "0xa0b8", ChainID: 1, Decimals: 6}
)

func TestPoolStateAdapterRequestsPoolResource(t *testing.T) {
	a := &PoolStateAdapter{Name: "subswap"}
	req := QuoteRequest{TokenIn: poolTokenIn, TokenOut: poolTokenOut, AmountIn: decimal.NewFromInt(10)}

	httpReq, err := a.BuildRequest(context.Background(), "http://venue.test", req)
	require.NoError(t, err)

	assert.Equal(t, "/pool", httpReq.URL.Path)
	q := httpReq.URL.Query()
	assert.Equal(t, poolTokenIn.Address, q.Get("tokenIn"))
	assert.Equal(t, poolTokenOut.Address, q.Get("tokenOut"))
	assert.Equal(t, "10", q.Get("amountIn"))
}

func TestPoolStateAdapterReplaysReservesThroughConstantProduct(t *testing.T) {
	payload, err := json.Marshal(map[string]interface{}{
		"pool":        "0xpool",
		"reserveIn":   "1000",
		"reserveOut":  "2000000",
		"fee":         0.003,
		"tvl":         "4000000",
		"gasEstimate": int64(120_000),
	})
	require.NoError(t, err)

	a := &PoolStateAdapter{Name: "subswap"}
	req := QuoteRequest{TokenIn: poolTokenIn, TokenOut: poolTokenOut, AmountIn: decimal.NewFromInt(10)}
	quote, err := a.ParseResponse(payload, req)
	require.NoError(t, err)
	require.NoError(t, quote.Validate())

	want, err := amm.Quote(&domain.LiquidityPool{
		Address:  "0xpool",
		Source:   "subswap",
		ChainID:  1,
		Token0:   poolTokenIn,
		Token1:   poolTokenOut,
		Reserve0: decimal.NewFromInt(1000),
		Reserve1: decimal.NewFromInt(2_000_000),
		FeeRate:  0.003,
		TVL:      decimal.NewFromInt(4_000_000),
	}, poolTokenIn, decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.True(t, quote.AmountOut.Equal(want.AmountOut),
		"adapter output %s, constant product %s", quote.AmountOut, want.AmountOut)
	assert.Equal(t, "0xpool", quote.PoolAddress)
	assert.Equal(t, int64(120_000), quote.GasEstimate)
	assert.InDelta(t, want.PriceImpactPct, quote.PriceImpact, 1e-9)
}

func TestPoolStateAdapterRejectsBadReserves(t *testing.T) {
	a := &PoolStateAdapter{Name: "subswap"}
	req := QuoteRequest{TokenIn: poolTokenIn, TokenOut: poolTokenOut, AmountIn: decimal.NewFromInt(10)}

	_, err := a.ParseResponse([]byte(`{"pool":"0xpool","reserveIn":"oops","reserveOut":"1"}`), req)
	assert.Error(t, err)
}

func TestRegistrySelectsPoolStateAdapterFromConfig(t *testing.T) {
	r := NewRegistry()
	entry := r.Register(config.SourceConfig{
		Name:       "subswap",
		Adapter:    "pool_state",
		RateLimit:  10,
		RateWindow: config.Duration(time.Second),
		Enabled:    true,
	}, nil)

	_, ok := entry.Adapter.(*PoolStateAdapter)
	assert.True(t, ok, "pool_state config must select the pool-state adapter")
}
