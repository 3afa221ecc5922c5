package mapbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/loss-recon/internal/domain"
	"github.com/couchcryptid/loss-recon/internal/observability"
)

// CachedResolver wraps a Resolver with an in-memory LRU cache. Storm and
// fire reports cluster geographically, so the same coordinates and place
// names repeat across a run.
type CachedResolver struct {
	inner   domain.Resolver
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.Resolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedResolver) ResolveCoordinates(ctx context.Context, lat, lon float64) (domain.ResolvedLocation, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if result, ok := c.cache.get(key); ok {
		c.metrics.ResolveCache.WithLabelValues("reverse", "hit").Inc()
		return result, nil
	}
	c.metrics.ResolveCache.WithLabelValues("reverse", "miss").Inc()

	result, err := c.inner.ResolveCoordinates(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache useful results so transient "not found" responses can be retried.
	if resolvedSomething(result) {
		c.cache.put(key, result)
	}
	return result, nil
}

func (c *CachedResolver) ResolvePlace(ctx context.Context, place, state string) (domain.ResolvedLocation, error) {
	key := fmt.Sprintf("fwd:%s|%s", place, state)
	if result, ok := c.cache.get(key); ok {
		c.metrics.ResolveCache.WithLabelValues("forward", "hit").Inc()
		return result, nil
	}
	c.metrics.ResolveCache.WithLabelValues("forward", "miss").Inc()

	result, err := c.inner.ResolvePlace(ctx, place, state)
	if err != nil {
		return result, err
	}
	if resolvedSomething(result) {
		c.cache.put(key, result)
	}
	return result, nil
}

func resolvedSomething(r domain.ResolvedLocation) bool {
	return r.HasCoords || r.Zip != "" || r.County != "" || r.State != ""
}

// lruCache is a simple thread-safe LRU cache for ResolvedLocations.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.ResolvedLocation
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.ResolvedLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.ResolvedLocation{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.ResolvedLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
