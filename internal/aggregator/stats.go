package aggregator

import (
	"math"
	"sort"

	"dex-route-engine/internal/domain"
)

// ComputeSpreadStats summarizes the raw price distribution of a quote
// set. Returns zero stats for an empty set.
func ComputeSpreadStats(quotes []*domain.Quote) domain.SpreadStats {
	if len(quotes) == 0 {
		return domain.SpreadStats{}
	}

	prices := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i], _ = q.Price.Float64()
	}
	sort.Float64s(prices)

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))

	var variance float64
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))

	stats := domain.SpreadStats{
		Min:    prices[0],
		Max:    prices[len(prices)-1],
		Median: median(prices),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
	}
	if stats.Min > 0 {
		stats.SpreadPct = (stats.Max - stats.Min) / stats.Min * 100
	}
	return stats
}

// median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
