package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-route-engine/internal/domain"
)

func TestRouteCacheServesWithinTTL(t *testing.T) {
	c := NewRouteCache(time.Minute)
	defer c.Close()

	routes := []*domain.OptimizedRoute{{ID: "r1"}}
	c.Set("key", routes)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, routes, got)
}

func TestRouteCacheExpires(t *testing.T) {
	c := NewRouteCache(20 * time.Millisecond)
	defer c.Close()

	c.Set("key", []*domain.OptimizedRoute{{ID: "r1"}})
	require.Equal(t, 1, c.Len())

	assert.Eventually(t, func() bool {
		_, ok := c.Get("key")
		return !ok && c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRouteCacheOverwriteKeepsNewEntryAlive(t *testing.T) {
	c := NewRouteCache(40 * time.Millisecond)
	defer c.Close()

	c.Set("key", []*domain.OptimizedRoute{{ID: "old"}})
	time.Sleep(25 * time.Millisecond)
	c.Set("key", []*domain.OptimizedRoute{{ID: "new"}})
	time.Sleep(25 * time.Millisecond)

	got, ok := c.Get("key")
	require.True(t, ok, "overwrite must restart the TTL")
	assert.Equal(t, "new", got[0].ID)
}
