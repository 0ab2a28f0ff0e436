package source

import (
	"sync"
	"time"
)

// SlidingWindow is a per-source sliding-window admission limiter.
// It never admits more than limit requests inside one window, computed
// by pruning timestamps older than now-window before counting.
//
// Callers that are not admitted simply skip the source for the current
// aggregation pass; there is no blocking or queueing.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewSlidingWindow creates a limiter admitting at most limit requests
// per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
	}
}

// Admit reports whether a request may proceed at time now, recording
// the request when admitted.
func (w *SlidingWindow) Admit(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Pending returns the number of requests currently counted against the
// window at time now.
func (w *SlidingWindow) Pending(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return len(w.stamps)
}

// prune drops timestamps older than now-window. Caller holds mu.
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept
}
