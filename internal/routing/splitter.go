package routing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/routeid"
)

// Split-route adjustments: slices execute in parallel but need
// coordination, and spreading across venues dilutes single-venue
// slippage exposure.
const (
	splitTimePenalty = time.Second
	splitRiskFactor  = 0.85
)

// Splitter decomposes large orders into independently routed equal
// slices. A decomposition heuristic, not an optimal-execution solver.
type Splitter struct {
	threshold    decimal.Decimal
	maxSliceSize decimal.Decimal
}

// NewSplitter creates a splitter. Orders with notional above threshold
// are divided into ceil(amount/maxSliceSize) equal slices.
func NewSplitter(threshold, maxSliceSize float64) *Splitter {
	return &Splitter{
		threshold:    decimal.NewFromFloat(threshold),
		maxSliceSize: decimal.NewFromFloat(maxSliceSize),
	}
}

// NeedsSplit reports whether an order is large enough to decompose.
func (s *Splitter) NeedsSplit(amountIn decimal.Decimal) bool {
	return s.maxSliceSize.IsPositive() && amountIn.GreaterThan(s.threshold)
}

// SliceAmounts divides the order into equal slices. The last slice
// absorbs any rounding remainder so the amounts always sum to the
// original.
func (s *Splitter) SliceAmounts(amountIn decimal.Decimal) []decimal.Decimal {
	n := amountIn.Div(s.maxSliceSize).Ceil().IntPart()
	if n <= 1 {
		return []decimal.Decimal{amountIn}
	}

	slice := amountIn.Div(decimal.NewFromInt(n)).Truncate(18)
	out := make([]decimal.Decimal, n)
	running := decimal.Zero
	for i := int64(0); i < n-1; i++ {
		out[i] = slice
		running = running.Add(slice)
	}
	out[n-1] = amountIn.Sub(running)
	return out
}

// Combine folds independently routed slices into one split route.
func (s *Splitter) Combine(amountIn decimal.Decimal, slices []*domain.OptimizedRoute) *domain.OptimizedRoute {
	if len(slices) == 0 {
		return nil
	}
	if len(slices) == 1 {
		return slices[0]
	}

	out := decimal.Zero
	var gas int64
	var feePct, impactPct, confidence, risk float64
	var longest time.Duration
	var sources []string
	for _, slice := range slices {
		out = out.Add(slice.AmountOut)
		gas += slice.TotalGas
		feePct += slice.TotalFeePct
		impactPct += slice.TotalImpactPct
		confidence += slice.Confidence
		risk += slice.RiskScore
		if slice.EstimatedTime > longest {
			longest = slice.EstimatedTime
		}
		sources = append(sources, slice.Sources()...)
	}
	n := float64(len(slices))

	return &domain.OptimizedRoute{
		ID:             uuid.NewString(),
		Signature:      routeid.RouteSignature(sources),
		Kind:           domain.RouteSplit,
		AmountIn:       amountIn,
		AmountOut:      out,
		TotalGas:       gas,
		TotalFeePct:    feePct / n,
		TotalImpactPct: impactPct / n,
		Confidence:     clampPct(confidence / n),
		RiskScore:      clampPct(risk / n * splitRiskFactor),
		EstimatedTime:  longest + splitTimePenalty,
		Slices:         slices,
	}
}
