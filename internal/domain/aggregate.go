package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpreadStats summarizes the distribution of raw prices across sources
// for one aggregation pass. Display-level values, so plain floats.
type SpreadStats struct {
	Min       float64
	Max       float64
	Median    float64
	Mean      float64
	StdDev    float64
	SpreadPct float64 // (max-min)/min * 100
}

// AggregatedPrice is the result of one aggregation pass over all
// admitted sources. Rebuilt on every cycle and cached with a TTL.
type AggregatedPrice struct {
	PairKey   string
	TokenIn   Token
	TokenOut  Token
	AmountIn  decimal.Decimal
	Best      *Quote   // quote with the maximum output amount
	Quotes    []*Quote // valid quotes that survived filtering
	Rejected  []*Quote // stale or outlier quotes, kept for inspection
	Stats     SpreadStats
	Opportunities []*ArbitrageOpportunity
	UpdatedAt time.Time
}

// ArbitrageOpportunity is a qualifying price spread between two venues.
// Ephemeral and derived; never persisted beyond the cache TTL.
type ArbitrageOpportunity struct {
	ID              string
	PairKey         string
	BuySource       string // venue with the lower price
	SellSource      string // venue with the higher price
	BuyPrice        decimal.Decimal
	SellPrice       decimal.Decimal
	SpreadPct       float64
	ProfitMarginPct float64         // spread net of fee/slippage buffer
	MaxVolume       decimal.Decimal // min of both venues' liquidity
	RiskScore       float64         // 0..100, higher is riskier
	Confidence      float64         // 0..100
	DetectedAt      time.Time
}

// PriceUpdate is one incremental message from a push feed.
type PriceUpdate struct {
	Source    string
	PairKey   string
	Price     decimal.Decimal
	Timestamp time.Time
}
