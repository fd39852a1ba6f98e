package eventcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

func kline(symbol string, i int) eventmodels.Event {
	return eventmodels.NewEvent("market", eventmodels.CategoryMarket, symbol, time.Unix(int64(i), 0), map[string]interface{}{"close": float64(i)})
}

func TestCache(t *testing.T) {
	t.Run("returns the last capacity items in arrival order", func(t *testing.T) {
		// arrange
		c := New(map[eventmodels.Category]int{eventmodels.CategoryMarket: 10})

		// act
		for i := 0; i < 25; i++ {
			c.Add("BTC/USDT", kline("BTC/USDT", i))
		}

		// assert
		latest := c.GetLatest("BTC/USDT", 10)
		require.Len(t, latest, 10)
		for i, ev := range latest {
			v, _ := ev.Float("close")
			assert.Equal(t, float64(15+i), v)
		}
	})

	t.Run("returns fewer when not enough are cached", func(t *testing.T) {
		c := New(nil)
		c.Add("ETH/USDT", kline("ETH/USDT", 1))

		assert.Len(t, c.GetLatest("ETH/USDT", 10), 1)
		assert.Empty(t, c.GetLatest("unknown", 10))
	})

	t.Run("market data is kept per symbol", func(t *testing.T) {
		c := New(nil)
		c.Put(kline("BTC/USDT", 1))
		c.Put(kline("ETH/USDT", 2))

		assert.Len(t, c.GetLatest("BTC/USDT", 10), 1)
		assert.Len(t, c.GetLatest("ETH/USDT", 10), 1)
	})

	t.Run("news and whale events share one list per category", func(t *testing.T) {
		c := New(map[eventmodels.Category]int{eventmodels.CategoryNews: 3})
		for i := 0; i < 5; i++ {
			feed := fmt.Sprintf("feed-%d", i%2)
			c.Put(eventmodels.NewEvent("news", eventmodels.CategoryNews, feed, time.Unix(int64(i), 0), nil))
		}

		latest := c.GetLatest("news", 10)
		assert.Len(t, latest, 3)
		assert.Equal(t, time.Unix(4, 0), latest[2].Timestamp)
	})

	t.Run("capacity is fixed per category", func(t *testing.T) {
		c := New(nil)
		for i := 0; i < 300; i++ {
			c.Put(eventmodels.NewEvent("whale", eventmodels.CategoryLargeTransaction, "BTC", time.Unix(int64(i), 0), nil))
		}

		stats := c.Stats()
		require.Len(t, stats, 1)
		assert.Equal(t, KeyStats{Key: "large_transaction", Size: 200, Capacity: 200}, stats[0])
	})

	t.Run("concurrent writers never exceed capacity", func(t *testing.T) {
		c := New(map[eventmodels.Category]int{eventmodels.CategoryMarket: 50})
		wg := sync.WaitGroup{}
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					c.Add("BTC/USDT", kline("BTC/USDT", g*1000+i))
					c.GetLatest("BTC/USDT", 5)
				}
			}(g)
		}
		wg.Wait()

		assert.Len(t, c.GetLatest("BTC/USDT", 100), 50)
	})
}
