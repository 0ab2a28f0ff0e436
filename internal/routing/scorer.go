package routing

import (
	"sort"

	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
)

// deriveQuality assigns the baseline confidence and risk figures for a
// freshly assembled route. Confidence decays with depth and rises
// slightly when every hop carries a known pool address; risk grows
// with depth and cumulative price impact.
func deriveQuality(route *domain.OptimizedRoute) {
	hops := route.Hops()

	confidence := 95.0 - 10.0*float64(hops-1)
	allPools := true
	for _, step := range route.Steps {
		if step.PoolAddress == "" {
			allPools = false
			break
		}
	}
	if allPools {
		confidence += 3
	}
	route.Confidence = clampPct(confidence)

	risk := 10.0 + 12.0*float64(hops-1) + route.TotalImpactPct*1.5
	route.RiskScore = clampPct(risk)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Scorer ranks a candidate set under one objective. Scores are
// normalized over the set being ranked and are only comparable within
// one scoring pass.
type Scorer struct {
	objective domain.Objective
	weights   config.BalancedWeights
}

// NewScorer creates a scorer for the given objective.
func NewScorer(objective domain.Objective, weights config.BalancedWeights) *Scorer {
	return &Scorer{objective: objective, weights: weights}
}

// Rank scores every route and sorts the slice best-first.
func (s *Scorer) Rank(routes []*domain.OptimizedRoute) {
	if len(routes) == 0 {
		return
	}

	outNorm := normalizeHigh(routes, func(r *domain.OptimizedRoute) float64 {
		v, _ := r.AmountOut.Float64()
		return v
	})
	gasNorm := normalizeLow(routes, func(r *domain.OptimizedRoute) float64 {
		return float64(r.TotalGas)
	})
	speedNorm := normalizeLow(routes, func(r *domain.OptimizedRoute) float64 {
		return float64(r.EstimatedTime)
	})

	for i, route := range routes {
		switch s.objective {
		case domain.ObjectivePrice:
			route.Score = outNorm[i]
		case domain.ObjectiveGas:
			route.Score = gasNorm[i]
		case domain.ObjectiveSpeed:
			route.Score = speedNorm[i]
		default:
			w := s.weights
			route.Score = w.Output*outNorm[i] +
				w.Gas*gasNorm[i] +
				w.Speed*speedNorm[i] +
				w.Confidence*route.Confidence/100 +
				w.Risk*(1-route.RiskScore/100)
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Score > routes[j].Score
	})
}

// normalizeHigh maps values to [0,1] with the largest value at 1.
func normalizeHigh(routes []*domain.OptimizedRoute, field func(*domain.OptimizedRoute) float64) []float64 {
	return normalize(routes, field, false)
}

// normalizeLow maps values to [0,1] with the smallest value at 1.
func normalizeLow(routes []*domain.OptimizedRoute, field func(*domain.OptimizedRoute) float64) []float64 {
	return normalize(routes, field, true)
}

func normalize(routes []*domain.OptimizedRoute, field func(*domain.OptimizedRoute) float64, invert bool) []float64 {
	min, max := field(routes[0]), field(routes[0])
	for _, r := range routes[1:] {
		v := field(r)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(routes))
	span := max - min
	for i, r := range routes {
		if span == 0 {
			out[i] = 1
			continue
		}
		n := (field(r) - min) / span
		if invert {
			n = 1 - n
		}
		out[i] = n
	}
	return out
}
