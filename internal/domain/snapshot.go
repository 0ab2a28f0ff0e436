package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is the persisted trace of one aggregation pass,
// flattened for timeseries storage.
type PriceSnapshot struct {
	PairKey       string
	BestSource    string
	Price         decimal.Decimal
	SpreadPct     float64
	QuoteCount    int
	Opportunities int
	Timestamp     time.Time
}

// SnapshotOf flattens an aggregation result into its persisted form.
func SnapshotOf(ap *AggregatedPrice) *PriceSnapshot {
	snap := &PriceSnapshot{
		PairKey:       ap.PairKey,
		SpreadPct:     ap.Stats.SpreadPct,
		QuoteCount:    len(ap.Quotes),
		Opportunities: len(ap.Opportunities),
		Timestamp:     ap.UpdatedAt,
	}
	if ap.Best != nil {
		snap.BestSource = ap.Best.Source
		snap.Price = ap.Best.Price
	}
	return snap
}
