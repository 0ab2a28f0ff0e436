package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dex-route-engine/internal/domain"
)

func quotesWithPrices(prices ...float64) []*domain.Quote {
	out := make([]*domain.Quote, len(prices))
	for i, p := range prices {
		out[i] = &domain.Quote{
			Source: string(rune('a' + i)),
			Price:  decimal.NewFromFloat(p),
		}
	}
	return out
}

func prices(quotes []*domain.Quote) []float64 {
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i], _ = q.Price.Float64()
	}
	return out
}

func TestFilterOutliers_RejectsSingleBadSource(t *testing.T) {
	kept, rejected := FilterOutliers(quotesWithPrices(10, 10, 10, 10, 1000))

	assert.ElementsMatch(t, []float64{10, 10, 10, 10}, prices(kept))
	assert.ElementsMatch(t, []float64{1000}, prices(rejected))
}

func TestFilterOutliers_NoOpBelowThreeSamples(t *testing.T) {
	in := quotesWithPrices(10, 1000)
	kept, rejected := FilterOutliers(in)

	assert.Equal(t, in, kept)
	assert.Empty(t, rejected)
}

func TestFilterOutliers_KeepsTightDistribution(t *testing.T) {
	kept, rejected := FilterOutliers(quotesWithPrices(99, 100, 101, 102))

	assert.Len(t, kept, 4)
	assert.Empty(t, rejected)
}

func TestFilterOutliers_RejectsLowOutlierToo(t *testing.T) {
	_, rejected := FilterOutliers(quotesWithPrices(1, 100, 100, 100, 101))

	assert.ElementsMatch(t, []float64{1}, prices(rejected))
}

func TestFilterOutliers_ThreeSourcesRejectBadOne(t *testing.T) {
	kept, rejected := FilterOutliers(quotesWithPrices(100, 102, 1000))

	assert.ElementsMatch(t, []float64{100, 102}, prices(kept))
	assert.ElementsMatch(t, []float64{1000}, prices(rejected))
}

func TestQuantile_FloorRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 3, quantile(sorted, 0.75), 1e-9)
	assert.InDelta(t, 4, quantile(sorted, 1.0), 1e-9)
}
