package aggregator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/routeid"
)

// Detector scans a quote set for cross-venue price spreads worth
// acting on.
type Detector struct {
	// ThresholdPct is the minimum spread percentage for an opportunity.
	ThresholdPct float64
	// MinLiquidityUSD is required on BOTH venues of a pair.
	MinLiquidityUSD decimal.Decimal
	// FeeBufferPct approximates fees plus slippage and is subtracted
	// from the raw spread to estimate profit margin.
	FeeBufferPct float64
}

// Detect scans all unordered pairs of valid quotes and emits one
// opportunity per qualifying pair, sorted by descending profit margin.
func (d *Detector) Detect(pairKey string, quotes []*domain.Quote, now time.Time) []*domain.ArbitrageOpportunity {
	var out []*domain.ArbitrageOpportunity

	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			if opp := d.check(pairKey, quotes[i], quotes[j], now); opp != nil {
				out = append(out, opp)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ProfitMarginPct > out[j].ProfitMarginPct
	})
	return out
}

// check evaluates one unordered venue pair. Returns nil when the
// spread or liquidity bound is not met.
func (d *Detector) check(pairKey string, a, b *domain.Quote, now time.Time) *domain.ArbitrageOpportunity {
	buy, sell := a, b
	if b.Price.LessThan(a.Price) {
		buy, sell = b, a
	}
	if !buy.Price.IsPositive() {
		return nil
	}

	spread := sell.Price.Sub(buy.Price).Div(buy.Price).Mul(decimal.NewFromInt(100))
	spreadPct, _ := spread.Float64()
	if spreadPct < d.ThresholdPct {
		return nil
	}

	minLiq := decimal.Min(buy.Liquidity, sell.Liquidity)
	if minLiq.LessThan(d.MinLiquidityUSD) {
		return nil
	}

	margin := spreadPct - d.FeeBufferPct
	confidence := buy.Confidence
	if sell.Confidence < confidence {
		confidence = sell.Confidence
	}

	return &domain.ArbitrageOpportunity{
		ID:              routeid.OpportunityID(pairKey, buy.Source, sell.Source),
		PairKey:         pairKey,
		BuySource:       buy.Source,
		SellSource:      sell.Source,
		BuyPrice:        buy.Price,
		SellPrice:       sell.Price,
		SpreadPct:       spreadPct,
		ProfitMarginPct: margin,
		MaxVolume:       minLiq,
		RiskScore:       d.riskScore(buy, sell, minLiq),
		Confidence:      confidence,
		DetectedAt:      now,
	}
}

// riskScore grades an opportunity from venue liquidity, price impact,
// source confidence and combined gas cost. 0 is safest, 100 riskiest.
func (d *Detector) riskScore(buy, sell *domain.Quote, minLiq decimal.Decimal) float64 {
	risk := 50.0

	// Confident sources reduce risk, up to -30.
	risk -= (buy.Confidence + sell.Confidence) / 2 * 0.3

	// Liquidity tiers.
	liq, _ := minLiq.Float64()
	switch {
	case liq >= 10_000_000:
		risk -= 15
	case liq >= 1_000_000:
		risk -= 5
	default:
		risk += 10
	}

	// Impact on either leg eats into the realizable spread.
	risk += (buy.PriceImpact + sell.PriceImpact) * 1.5

	// Two swaps' worth of gas.
	gasPenalty := float64(buy.GasEstimate+sell.GasEstimate) / 100_000
	if gasPenalty > 10 {
		gasPenalty = 10
	}
	risk += gasPenalty

	return clamp(risk, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
