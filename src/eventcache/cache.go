package eventcache

import (
	"sort"
	"sync"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/ringbuffer"
)

var DefaultCapacities = map[eventmodels.Category]int{
	eventmodels.CategoryMarket:           1000,
	eventmodels.CategoryNews:             500,
	eventmodels.CategoryLargeTransaction: 200,
}

const fallbackCapacity = 100

// Cache keeps the most recent events per key in bounded buffers. Market
// events are keyed per symbol; other categories share one list per category.
type Cache struct {
	mu         sync.RWMutex
	capacities map[eventmodels.Category]int
	buffers    map[string]*ringbuffer.Ring[eventmodels.Event]
}

func New(capacities map[eventmodels.Category]int) *Cache {
	caps := make(map[eventmodels.Category]int, len(DefaultCapacities))
	for k, v := range DefaultCapacities {
		caps[k] = v
	}
	for k, v := range capacities {
		if v > 0 {
			caps[k] = v
		}
	}

	return &Cache{
		capacities: caps,
		buffers:    make(map[string]*ringbuffer.Ring[eventmodels.Event]),
	}
}

// KeyFor returns the cache key an event is stored under.
func KeyFor(ev eventmodels.Event) string {
	if ev.Category == eventmodels.CategoryMarket && ev.Key != "" {
		return ev.Key
	}

	return string(ev.Category)
}

func (c *Cache) Add(key string, ev eventmodels.Event) {
	c.bufferFor(key, ev.Category).Push(ev)
}

// Put stores ev under KeyFor(ev).
func (c *Cache) Put(ev eventmodels.Event) string {
	key := KeyFor(ev)
	c.Add(key, ev)
	return key
}

func (c *Cache) bufferFor(key string, category eventmodels.Category) *ringbuffer.Ring[eventmodels.Event] {
	c.mu.RLock()
	buf, found := c.buffers[key]
	c.mu.RUnlock()
	if found {
		return buf
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if buf, found = c.buffers[key]; found {
		return buf
	}

	capacity, ok := c.capacities[category]
	if !ok {
		capacity = fallbackCapacity
	}

	buf = ringbuffer.New[eventmodels.Event](capacity)
	c.buffers[key] = buf
	return buf
}

// GetLatest returns up to count of the newest events for key, oldest first.
func (c *Cache) GetLatest(key string, count int) []eventmodels.Event {
	c.mu.RLock()
	buf, found := c.buffers[key]
	c.mu.RUnlock()

	if !found {
		return []eventmodels.Event{}
	}

	return buf.Latest(count)
}

func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.buffers))
	for k := range c.buffers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type KeyStats struct {
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

func (c *Cache) Stats() []KeyStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]KeyStats, 0, len(c.buffers))
	for k, buf := range c.buffers {
		stats = append(stats, KeyStats{Key: k, Size: buf.Len(), Capacity: buf.Cap()})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.buffers, key)
}
