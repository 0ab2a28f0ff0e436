package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuote is returned by Quote.Validate when a fetched quote
// violates one of the validity invariants. Invalid quotes are discarded
// by the aggregation pass, never surfaced to the caller.
var ErrInvalidQuote = errors.New("invalid quote")

// Quote is one source's answer for a (tokenIn, tokenOut, amountIn)
// request. Quotes are never mutated after creation; a newer fetch or a
// feed update supersedes them with a fresh instance.
type Quote struct {
	Source      string          // source identifier, e.g. "uniswap-v2"
	TokenIn     Token
	TokenOut    Token
	Price       decimal.Decimal // unit price: tokenOut per tokenIn
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	PriceImpact float64         // percent, 0..100
	Liquidity   decimal.Decimal // venue liquidity in USD
	GasEstimate int64           // gas units for one swap on this venue
	Timestamp   time.Time
	Confidence  float64 // 0..100

	// Venue metadata.
	PoolAddress string
	FeeRate     float64 // e.g. 0.003
	Volume24h   decimal.Decimal
}

// Validate checks the quote invariants: price > 0, output > 0, price
// impact within [0,100], liquidity >= 0, confidence within [0,100].
func (q *Quote) Validate() error {
	switch {
	case q == nil:
		return fmt.Errorf("%w: nil quote", ErrInvalidQuote)
	case q.Source == "":
		return fmt.Errorf("%w: empty source", ErrInvalidQuote)
	case !q.Price.IsPositive():
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidQuote, q.Price)
	case !q.AmountOut.IsPositive():
		return fmt.Errorf("%w: output %s must be positive", ErrInvalidQuote, q.AmountOut)
	case q.PriceImpact < 0 || q.PriceImpact > 100:
		return fmt.Errorf("%w: price impact %.2f outside [0,100]", ErrInvalidQuote, q.PriceImpact)
	case q.Liquidity.IsNegative():
		return fmt.Errorf("%w: negative liquidity %s", ErrInvalidQuote, q.Liquidity)
	case q.Confidence < 0 || q.Confidence > 100:
		return fmt.Errorf("%w: confidence %.2f outside [0,100]", ErrInvalidQuote, q.Confidence)
	}
	return nil
}

// Fresh reports whether the quote is younger than maxStale at time now.
func (q *Quote) Fresh(now time.Time, maxStale time.Duration) bool {
	return now.Sub(q.Timestamp) < maxStale
}

// WithPrice returns a copy of the quote carrying a new price and
// timestamp, with the output amount rescaled proportionally. Used by
// the feed path to patch a cached aggregate without a full re-fetch.
func (q *Quote) WithPrice(price decimal.Decimal, at time.Time) *Quote {
	patched := *q
	patched.Price = price
	patched.Timestamp = at
	if q.Price.IsPositive() {
		patched.AmountOut = q.AmountOut.Mul(price).Div(q.Price)
	}
	return &patched
}
