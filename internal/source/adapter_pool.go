package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/amm"
	"dex-route-engine/internal/domain"
)

// poolStatePayload is served by venues that expose raw pool reserves
// instead of a precomputed quote (subgraph-style APIs).
type poolStatePayload struct {
	PoolAddress string  `json:"pool"`
	ReserveIn   string  `json:"reserveIn"`
	ReserveOut  string  `json:"reserveOut"`
	FeeRate     float64 `json:"fee"`
	TVL         string  `json:"tvl"`
	GasEstimate int64   `json:"gasEstimate"`
}

// PoolStateAdapter quotes venues that return reserve snapshots. The
// output amount is derived locally with the constant-product formula,
// so quotes from these venues carry a higher confidence: the math is
// exact given the snapshot.
type PoolStateAdapter struct {
	Name string
}

var _ Adapter = (*PoolStateAdapter)(nil)

// BuildRequest issues GET {endpoint}/pool?tokenIn=..&tokenOut=..
func (a *PoolStateAdapter) BuildRequest(ctx context.Context, endpoint string, req QuoteRequest) (*http.Request, error) {
	base := &DefaultAdapter{Name: a.Name}
	httpReq, err := base.BuildRequest(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}
	// Same query surface, different resource.
	httpReq.URL.Path = "/pool"
	return httpReq, nil
}

// ParseResponse replays the snapshot through the AMM calculator.
func (a *PoolStateAdapter) ParseResponse(body []byte, req QuoteRequest) (*domain.Quote, error) {
	var payload poolStatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode pool payload: %w", err)
	}

	reserveIn, err := decimal.NewFromString(payload.ReserveIn)
	if err != nil {
		return nil, fmt.Errorf("parse reserveIn %q: %w", payload.ReserveIn, err)
	}
	reserveOut, err := decimal.NewFromString(payload.ReserveOut)
	if err != nil {
		return nil, fmt.Errorf("parse reserveOut %q: %w", payload.ReserveOut, err)
	}
	tvl := decimal.Zero
	if payload.TVL != "" {
		if tvl, err = decimal.NewFromString(payload.TVL); err != nil {
			return nil, fmt.Errorf("parse tvl %q: %w", payload.TVL, err)
		}
	}

	pool := &domain.LiquidityPool{
		Address:  payload.PoolAddress,
		Source:   a.Name,
		ChainID:  req.TokenIn.ChainID,
		Token0:   req.TokenIn,
		Token1:   req.TokenOut,
		Reserve0: reserveIn,
		Reserve1: reserveOut,
		FeeRate:  payload.FeeRate,
		TVL:      tvl,
	}

	swap, err := amm.Quote(pool, req.TokenIn, req.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("pool quote: %w", err)
	}

	return &domain.Quote{
		Source:      a.Name,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Price:       swap.EffectivePrice,
		AmountIn:    req.AmountIn,
		AmountOut:   swap.AmountOut,
		PriceImpact: swap.PriceImpactPct,
		Liquidity:   tvl,
		GasEstimate: payload.GasEstimate,
		Timestamp:   time.Now(),
		Confidence:  90,
		PoolAddress: payload.PoolAddress,
		FeeRate:     payload.FeeRate,
	}, nil
}
