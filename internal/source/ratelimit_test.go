package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow_RejectsExactlyOneOverLimit(t *testing.T) {
	// limit L admissions inside one window: L+1 checks produce exactly
	// one rejection.
	const limit = 5
	w := NewSlidingWindow(limit, time.Second)
	now := time.Now()

	rejected := 0
	for i := 0; i < limit+1; i++ {
		if !w.Admit(now.Add(time.Duration(i) * time.Millisecond)) {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
}

func TestSlidingWindow_AdmitsAgainAfterWindowPasses(t *testing.T) {
	w := NewSlidingWindow(2, 100*time.Millisecond)
	now := time.Now()

	assert.True(t, w.Admit(now))
	assert.True(t, w.Admit(now))
	assert.False(t, w.Admit(now.Add(50*time.Millisecond)))

	// Both stamps fall out of the window.
	assert.True(t, w.Admit(now.Add(150*time.Millisecond)))
}

func TestSlidingWindow_PruneKeepsPartialWindow(t *testing.T) {
	w := NewSlidingWindow(3, 100*time.Millisecond)
	now := time.Now()

	w.Admit(now)
	w.Admit(now.Add(60 * time.Millisecond))

	// At now+110ms only the second stamp remains.
	assert.Equal(t, 1, w.Pending(now.Add(110*time.Millisecond)))
}
