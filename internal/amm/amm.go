// Package amm implements constant-product swap math.
//
// All amount and reserve arithmetic uses decimal.Decimal; only
// display-level percentages are returned as floats.
package amm

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
)

// ErrInsufficientLiquidity is returned when a pool cannot quote the
// requested direction or has empty reserves.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity")

// SwapResult is the outcome of applying one swap to a pool snapshot.
type SwapResult struct {
	AmountOut      decimal.Decimal
	PriceImpactPct float64         // percent deviation from the marginal price
	EffectivePrice decimal.Decimal // amountOut / amountIn
	FeePaid        decimal.Decimal // amountIn * feeRate
}

// Quote computes the output of swapping amountIn of tokenIn through
// the pool, preserving the constant-product invariant k = r0*r1 with
// the fee extracted from the input side:
//
//	amountInAfterFee = amountIn * (1 - fee)
//	amountOut        = rOut - (rIn*rOut)/(rIn + amountInAfterFee)
//
// Price impact is the percentage deviation between the pool's
// pre-trade marginal price (rOut/rIn) and the realized effective
// price. Pure and deterministic given the snapshot.
func Quote(pool *domain.LiquidityPool, tokenIn domain.Token, amountIn decimal.Decimal) (*SwapResult, error) {
	if !amountIn.IsPositive() {
		return nil, fmt.Errorf("amount in must be positive, got %s", amountIn)
	}

	rIn, rOut, ok := pool.ReservesFor(tokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: pool %s does not hold %s", ErrInsufficientLiquidity, pool.Address, tokenIn.Symbol)
	}
	if !rIn.IsPositive() || !rOut.IsPositive() {
		return nil, fmt.Errorf("%w: pool %s has empty reserves", ErrInsufficientLiquidity, pool.Address)
	}

	fee := decimal.NewFromFloat(pool.FeeRate)
	afterFee := amountIn.Mul(decimal.NewFromInt(1).Sub(fee))

	k := rIn.Mul(rOut)
	amountOut := rOut.Sub(k.Div(rIn.Add(afterFee)))
	if !amountOut.IsPositive() {
		return nil, fmt.Errorf("%w: pool %s output not positive", ErrInsufficientLiquidity, pool.Address)
	}

	marginal := rOut.Div(rIn)
	effective := amountOut.Div(amountIn)

	impact := decimal.NewFromInt(0)
	if marginal.IsPositive() {
		impact = marginal.Sub(effective).Div(marginal).Mul(decimal.NewFromInt(100))
	}
	impactPct, _ := impact.Float64()
	if impactPct < 0 {
		impactPct = 0
	}
	if impactPct > 100 {
		impactPct = 100
	}

	return &SwapResult{
		AmountOut:      amountOut,
		PriceImpactPct: impactPct,
		EffectivePrice: effective,
		FeePaid:        amountIn.Mul(fee),
	}, nil
}
