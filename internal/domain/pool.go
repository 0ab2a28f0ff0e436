package domain

import "github.com/shopspring/decimal"

// LiquidityPool is one constant-product swap venue. Reserves update in
// real time on chain, but a fetched snapshot is treated as immutable
// for the duration of one route calculation.
type LiquidityPool struct {
	Address  string
	Source   string // exchange tag, e.g. "sushiswap"
	ChainID  int64
	Token0   Token
	Token1   Token
	Reserve0 decimal.Decimal
	Reserve1 decimal.Decimal
	FeeRate  float64         // e.g. 0.003
	TVL      decimal.Decimal // total value locked, USD
}

// HasToken reports whether the pool touches the given token.
func (p *LiquidityPool) HasToken(t Token) bool {
	return p.Token0.Equal(t) || p.Token1.Equal(t)
}

// Other returns the pool's counterpart token for t. ok is false when
// the pool does not contain t.
func (p *LiquidityPool) Other(t Token) (Token, bool) {
	switch {
	case p.Token0.Equal(t):
		return p.Token1, true
	case p.Token1.Equal(t):
		return p.Token0, true
	}
	return Token{}, false
}

// ReservesFor orients the reserves for a swap selling tokenIn.
// Returns (reserveIn, reserveOut, ok).
func (p *LiquidityPool) ReservesFor(tokenIn Token) (decimal.Decimal, decimal.Decimal, bool) {
	switch {
	case p.Token0.Equal(tokenIn):
		return p.Reserve0, p.Reserve1, true
	case p.Token1.Equal(tokenIn):
		return p.Reserve1, p.Reserve0, true
	}
	return decimal.Zero, decimal.Zero, false
}
