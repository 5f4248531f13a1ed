package prices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	t.Run("Fresh Price Is Served", func(t *testing.T) {
		c := NewCache(time.Minute)
		c.Set("SOL-PERP", 152.3)

		price, ok := c.Get("SOL-PERP")
		assert.True(t, ok)
		assert.Equal(t, 152.3, price)
	})

	t.Run("Unknown Symbol Misses", func(t *testing.T) {
		c := NewCache(time.Minute)
		_, ok := c.Get("SOL-PERP")
		assert.False(t, ok)
	})

	t.Run("Stale Price Is Unusable", func(t *testing.T) {
		c := NewCache(10 * time.Millisecond)
		c.Set("SOL-PERP", 152.3)

		time.Sleep(30 * time.Millisecond)
		_, ok := c.Get("SOL-PERP")
		assert.False(t, ok)
	})

	t.Run("Non Positive Prices Are Dropped", func(t *testing.T) {
		c := NewCache(time.Minute)
		c.Set("SOL-PERP", 0)
		c.Set("SOL-PERP", -1)

		_, ok := c.Get("SOL-PERP")
		assert.False(t, ok)
	})

	t.Run("Latest Write Wins", func(t *testing.T) {
		c := NewCache(time.Minute)
		c.Set("SOL-PERP", 150)
		c.Set("SOL-PERP", 151)

		price, _ := c.Get("SOL-PERP")
		assert.Equal(t, 151.0, price)
	})
}
