package routing

import (
	"sync"

	"dex-route-engine/internal/domain"
)

// minSuccessRate floors the learner adjustment so a fully failing
// signature is heavily down-ranked but never divides risk by zero.
const minSuccessRate = 0.1

// Learner keeps a bounded rolling history of execution outcomes per
// route signature and re-weights candidate routes by the observed
// success rate. Signatures with no history are left untouched.
type Learner struct {
	mu          sync.Mutex
	historySize int
	history     map[string][]bool
}

// NewLearner creates a learner keeping the most recent historySize
// outcomes per signature.
func NewLearner(historySize int) *Learner {
	if historySize <= 0 {
		historySize = 50
	}
	return &Learner{
		historySize: historySize,
		history:     make(map[string][]bool),
	}
}

// Record appends one execution outcome, evicting the oldest entry once
// the window is full.
func (l *Learner) Record(outcome domain.RouteOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := append(l.history[outcome.Signature], outcome.Success)
	if len(h) > l.historySize {
		h = h[len(h)-l.historySize:]
	}
	l.history[outcome.Signature] = h
}

// SuccessRate returns the historical success rate for a signature.
// ok is false when no outcome has been recorded.
func (l *Learner) SuccessRate(signature string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.history[signature]
	if !ok || len(h) == 0 {
		return 0, false
	}
	wins := 0
	for _, success := range h {
		if success {
			wins++
		}
	}
	return float64(wins) / float64(len(h)), true
}

// Adjust scales a route's confidence by its signature's success rate
// and inflates its risk by the inverse. Routes with poor track records
// sink in the ranking without being excluded.
func (l *Learner) Adjust(route *domain.OptimizedRoute) {
	rate, ok := l.SuccessRate(route.Signature)
	if !ok {
		return
	}
	if rate < minSuccessRate {
		rate = minSuccessRate
	}
	route.Confidence = clampPct(route.Confidence * rate)
	route.RiskScore = clampPct(route.RiskScore / rate)
}
