package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSpreadStats_Basic(t *testing.T) {
	stats := ComputeSpreadStats(quotesWithPrices(100, 102, 98, 100))

	assert.Equal(t, 98.0, stats.Min)
	assert.Equal(t, 102.0, stats.Max)
	assert.Equal(t, 100.0, stats.Median)
	assert.Equal(t, 100.0, stats.Mean)
	assert.InDelta(t, math.Sqrt2, stats.StdDev, 1e-9)
	assert.InDelta(t, (102.0-98.0)/98.0*100, stats.SpreadPct, 1e-9)
}

func TestComputeSpreadStats_OddCountMedian(t *testing.T) {
	stats := ComputeSpreadStats(quotesWithPrices(1, 2, 9))
	assert.Equal(t, 2.0, stats.Median)
}

func TestComputeSpreadStats_Empty(t *testing.T) {
	stats := ComputeSpreadStats(nil)
	assert.Zero(t, stats.Mean)
	assert.Zero(t, stats.SpreadPct)
}
