package aggregator

import (
	"sort"

	"dex-route-engine/internal/domain"
)

// minOutlierSample is the smallest quote set the IQR rule applies to.
// Below it the filter is a no-op: quartiles of one or two points are
// meaningless.
const minOutlierSample = 3

// iqrFenceFactor is the classic Tukey fence multiplier.
const iqrFenceFactor = 1.5

// zeroSpreadBandPct widens the fences when the quartiles coincide.
// A collapsed IQR carries no spread information, so the band falls
// back to a fraction of the quartile value instead of rejecting every
// quote off the exact cluster price.
const zeroSpreadBandPct = 0.05

// FilterOutliers applies the interquartile-range rule over the quote
// prices: anything outside [Q1-1.5*IQR, Q3+1.5*IQR] is rejected. This
// keeps a single misbehaving or stale source from corrupting the
// best-price selection.
func FilterOutliers(quotes []*domain.Quote) (kept, rejected []*domain.Quote) {
	if len(quotes) < minOutlierSample {
		return quotes, nil
	}

	prices := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i], _ = q.Price.Float64()
	}
	sort.Float64s(prices)

	q1 := quantile(prices, 0.25)
	q3 := quantile(prices, 0.75)
	iqr := q3 - q1

	var lo, hi float64
	if iqr == 0 {
		band := q3 * zeroSpreadBandPct
		lo = q1 - band
		hi = q3 + band
	} else {
		lo = q1 - iqrFenceFactor*iqr
		hi = q3 + iqrFenceFactor*iqr
	}

	kept = make([]*domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		p, _ := q.Price.Float64()
		if p < lo || p > hi {
			rejected = append(rejected, q)
			continue
		}
		kept = append(kept, q)
	}
	return kept, rejected
}

// quantile returns the q-th quantile of sorted values by floor rank.
// Interpolated quantiles would smear a single extreme value into the
// quartiles on small samples and push the fences out past it.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
