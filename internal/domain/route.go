package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Objective selects how candidate routes are ranked.
type Objective string

// Routing objectives.
const (
	ObjectivePrice    Objective = "price"    // maximize output amount
	ObjectiveGas      Objective = "gas"      // minimize total gas
	ObjectiveSpeed    Objective = "speed"    // minimize estimated execution time
	ObjectiveBalanced Objective = "balanced" // weighted combination
)

// RouteKind tags how a route was constructed.
type RouteKind string

// Route kinds.
const (
	RouteDirect    RouteKind = "direct"
	RouteMultiHop  RouteKind = "multihop"
	RouteArbitrage RouteKind = "arbitrage"
	RouteSplit     RouteKind = "split"
)

// RouteStep is one hop of a route: a single swap on a single venue.
type RouteStep struct {
	Source      string
	TokenIn     Token
	TokenOut    Token
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	PoolAddress string
	FeeRate     float64
	PriceImpact float64 // percent
}

// OptimizedRoute is an ordered sequence of steps with aggregate cost
// and quality figures. Constructed per request, optionally cached, and
// later consumed by the performance learner when the caller reports an
// execution outcome.
type OptimizedRoute struct {
	ID             string
	Signature      string // deterministic hash of the ordered source list
	Kind           RouteKind
	Steps          []RouteStep
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	TotalGas       int64
	TotalFeePct    float64
	TotalImpactPct float64
	Confidence     float64 // 0..100
	RiskScore      float64 // 0..100
	EstimatedTime  time.Duration

	// Slices holds the per-slice sub-routes of a split route. Empty for
	// ordinary routes.
	Slices []*OptimizedRoute

	// Score is set by the scorer under the configured objective and is
	// only meaningful relative to routes scored in the same pass.
	Score float64
}

// Hops returns the number of swaps in the route.
func (r *OptimizedRoute) Hops() int { return len(r.Steps) }

// Sources returns the ordered list of venues the route passes through.
func (r *OptimizedRoute) Sources() []string {
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Source
	}
	return out
}

// RouteOutcome records one execution result for a route signature.
// Consumed by the performance learner and the route outcome store.
type RouteOutcome struct {
	Signature  string
	RouteID    string
	Success    bool
	RecordedAt time.Time
}
